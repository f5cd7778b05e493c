// Package bsonkit provides pure helpers to work with bson documents:
// deep cloning, value comparison, filter matching and update application.
//
// The filter and update dialects cover the operator subset a migration tool
// exercises; evaluation happens client side, without a database.
package bsonkit

import (
	"reflect"
	"strings"
	"time"

	"go.llib.dev/mongomigrate/pkg/errorkit"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// ErrInvalidUpdate is returned when an update document contains anything
	// other than update operators.
	ErrInvalidUpdate errorkit.Error = "update document must contain update operators only"
	// ErrInvalidOperand is returned when an update operator receives a value
	// it cannot work with.
	ErrInvalidOperand errorkit.Error = "invalid update operator operand"
)

// Clone makes a deep copy of the given document.
func Clone(doc bson.M) bson.M {
	if doc == nil {
		return nil
	}
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case bson.M:
		return Clone(v)
	case map[string]any:
		return Clone(bson.M(v))
	case bson.D:
		out := make(bson.D, len(v))
		for i, e := range v {
			out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []bson.M:
		out := make([]bson.M, len(v))
		for i, e := range v {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// LookupID returns the document's identifier.
func LookupID(doc bson.M) (any, bool) {
	id, ok := doc["_id"]
	return id, ok
}

// Eq tells if two bson values are equal.
// Numeric values are equal regardless of their concrete Go type,
// and documents are compared field by field under the same rule.
func Eq(a, b any) bool {
	if cmp, ok := Compare(a, b); ok {
		return cmp == 0
	}
	if ad, aok := toDocument(a); aok {
		bd, bok := toDocument(b)
		if !bok || len(ad) != len(bd) {
			return false
		}
		for k, av := range ad {
			bv, ok := bd[k]
			if !ok || !Eq(av, bv) {
				return false
			}
		}
		return true
	}
	if as, aok := toArray(a); aok {
		bs, bok := toArray(b)
		if !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Eq(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toDocument(v any) (bson.M, bool) {
	switch v := v.(type) {
	case bson.M:
		return v, true
	case map[string]any:
		return bson.M(v), true
	case bson.D:
		out := make(bson.M, len(v))
		for _, e := range v {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

func toArray(v any) ([]any, bool) {
	switch v := v.(type) {
	case bson.A:
		return []any(v), true
	case []any:
		return v, true
	default:
		return nil, false
	}
}

// Compare orders two bson values.
// The ok return value reports whether the two values are comparable at all.
func Compare(a, b any) (cmp int, ok bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		return compareOrdered(af, bf), true
	}
	switch a := a.(type) {
	case string:
		b, ok := b.(string)
		if !ok {
			return 0, false
		}
		return compareOrdered(a, b), true
	case bool:
		b, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return compareOrdered(btoi(a), btoi(b)), true
	case time.Time:
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return a.Compare(bt), true
	case bson.DateTime:
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return a.Time().Compare(bt), true
	case bson.ObjectID:
		b, ok := b.(bson.ObjectID)
		if !ok {
			return 0, false
		}
		return strings.Compare(a.Hex(), b.Hex()), true
	default:
		return 0, false
	}
}

func compareOrdered[T interface{ ~int | ~float64 | ~string }](a, b T) int {
	switch {
	case a < b:
		return -1
	case b < a:
		return 1
	default:
		return 0
	}
}

func btoi(v bool) int {
	if v {
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case bson.DateTime:
		return v.Time(), true
	default:
		return time.Time{}, false
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}
