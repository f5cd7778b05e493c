package bsonkit

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Match tells if the given document matches the filter.
// An empty or nil filter matches every document.
func Match(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range asFilterList(cond) {
				if !Match(doc, sub) {
					return false
				}
			}
		case "$or":
			if !matchAny(doc, asFilterList(cond)) {
				return false
			}
		case "$nor":
			if matchAny(doc, asFilterList(cond)) {
				return false
			}
		default:
			value, exists := getPath(doc, key)
			if !matchField(value, exists, cond) {
				return false
			}
		}
	}
	return true
}

func matchAny(doc bson.M, filters []bson.M) bool {
	for _, sub := range filters {
		if Match(doc, sub) {
			return true
		}
	}
	return false
}

func matchField(value any, exists bool, cond any) bool {
	if ops, ok := asOperatorDoc(cond); ok {
		return matchOperators(value, exists, ops)
	}
	if cond == nil {
		return !exists || value == nil
	}
	return exists && Eq(value, cond)
}

func matchOperators(value any, exists bool, ops bson.M) bool {
	for op, operand := range ops {
		if !matchOperator(value, exists, op, operand) {
			return false
		}
	}
	return true
}

func matchOperator(value any, exists bool, op string, operand any) bool {
	switch op {
	case "$eq":
		return matchField(value, exists, operand)
	case "$ne":
		return !matchField(value, exists, operand)
	case "$gt":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp > 0
	case "$gte":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp >= 0
	case "$lt":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp < 0
	case "$lte":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp <= 0
	case "$in":
		return exists && containsEq(asList(operand), value)
	case "$nin":
		return !exists || !containsEq(asList(operand), value)
	case "$exists":
		want, _ := operand.(bool)
		return exists == want
	case "$not":
		ops, ok := asOperatorDoc(operand)
		if !ok {
			return false
		}
		return !matchOperators(value, exists, ops)
	default:
		// unknown operators match nothing rather than everything
		return false
	}
}

// asOperatorDoc reports whether the condition is an operator document,
// e.g. {$gt: 20}, as opposed to a literal embedded document value.
func asOperatorDoc(cond any) (bson.M, bool) {
	doc, ok := asDoc(cond)
	if !ok || len(doc) == 0 {
		return nil, false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return doc, true
}

func asDoc(v any) (bson.M, bool) {
	switch v := v.(type) {
	case bson.M:
		return v, true
	case map[string]any:
		return bson.M(v), true
	case bson.D:
		doc := make(bson.M, len(v))
		for _, e := range v {
			doc[e.Key] = e.Value
		}
		return doc, true
	default:
		return nil, false
	}
}

func asFilterList(v any) []bson.M {
	var out []bson.M
	for _, e := range asList(v) {
		if doc, ok := asDoc(e); ok {
			out = append(out, doc)
		}
	}
	return out
}

func asList(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case bson.A:
		return v
	case []bson.M:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

func containsEq(vs []any, v any) bool {
	for _, e := range vs {
		if Eq(e, v) {
			return true
		}
	}
	return false
}

// Lookup resolves a possibly dotted field path within the document.
func Lookup(doc bson.M, path string) (any, bool) {
	return getPath(doc, path)
}

func getPath(doc bson.M, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	value, ok := doc[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return value, true
	}
	sub, ok := asDoc(value)
	if !ok {
		return nil, false
	}
	return getPath(sub, rest)
}

func setPath(doc bson.M, path string, value any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		doc[head] = value
		return
	}
	sub, ok := asDoc(doc[head])
	if !ok {
		sub = bson.M{}
		doc[head] = sub
	}
	setPath(sub, rest, value)
}

func unsetPath(doc bson.M, path string) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		delete(doc, head)
		return
	}
	if sub, ok := asDoc(doc[head]); ok {
		unsetPath(sub, rest)
	}
}
