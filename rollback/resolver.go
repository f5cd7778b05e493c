package rollback

import (
	"go.llib.dev/mongomigrate/pkg/bsonkit"
	"go.llib.dev/mongomigrate/pkg/errorkit"
	"go.llib.dev/mongomigrate/port/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind identifies one of the supported mutating operations.
type Kind string

const (
	KindInsertOne  Kind = "insertOne"
	KindInsertMany Kind = "insertMany"
	KindUpdateOne  Kind = "updateOne"
	KindUpdateMany Kind = "updateMany"
	KindReplaceOne Kind = "replaceOne"
	KindDeleteOne  Kind = "deleteOne"
	KindDeleteMany Kind = "deleteMany"
)

// PrimitiveKind identifies one of the atomic undo write variants.
type PrimitiveKind string

const (
	PrimitiveInsert          PrimitiveKind = "insert"
	PrimitiveDeleteByFilter  PrimitiveKind = "deleteByFilter"
	PrimitiveReplaceByFilter PrimitiveKind = "replaceByFilter"
)

// InversePrimitive is one atomic write that reverses the effect of a prior write.
type InversePrimitive struct {
	Kind        PrimitiveKind `bson:"kind"`
	Filter      bson.M        `bson:"filter,omitempty"`
	Document    bson.M        `bson:"document,omitempty"`
	Replacement bson.M        `bson:"replacement,omitempty"`
}

// Operation describes one executed forward write for the resolver.
//
// The pre-state rule is uniform: the update/delete/replace family carries the
// documents matching the filter as they were immediately before the write,
// while the insert family carries the identifiers the write result reported.
type Operation struct {
	Kind Kind
	// Filter is the filter argument of the forward call, when it takes one.
	Filter bson.M
	// Documents are the document arguments of an insert family call.
	Documents []bson.M
	// PreState are the matching documents snapshotted before the write.
	PreState []bson.M
	// InsertedIDs are the identifiers assigned by an insert family write.
	InsertedIDs []any
}

const (
	// ErrUnknownOperation is returned for an operation kind the resolver has no arm for.
	ErrUnknownOperation errorkit.Error = "unknown operation kind"
	// ErrMissingInsertedID is returned when an insert result lacks the assigned identifiers.
	ErrMissingInsertedID errorkit.Error = "insert result carries no assigned identifier"
	// ErrMissingDocumentID is returned when a pre-state document has no identifier to restore by.
	ErrMissingDocumentID errorkit.Error = "pre-state document has no _id to restore by"
)

// Resolve maps an executed forward operation to the ordered list of inverse
// primitives that undo it. It is a pure function: all state it needs is in the
// Operation value.
//
// The absence of a match for the update/delete/replace family is a legitimate
// no-op: zero primitives are returned, and no error.
func Resolve(op Operation) ([]InversePrimitive, error) {
	switch op.Kind {
	case KindInsertOne:
		if len(op.InsertedIDs) != 1 {
			return nil, ErrMissingInsertedID.F("%s expected one inserted id, got %d", op.Kind, len(op.InsertedIDs))
		}
		return []InversePrimitive{{
			Kind:   PrimitiveDeleteByFilter,
			Filter: bson.M{"_id": op.InsertedIDs[0]},
		}}, nil

	case KindInsertMany:
		if len(op.InsertedIDs) == 0 {
			return nil, nil
		}
		return []InversePrimitive{{
			Kind:   PrimitiveDeleteByFilter,
			Filter: bson.M{"_id": bson.M{"$in": append(bson.A{}, op.InsertedIDs...)}},
		}}, nil

	case KindDeleteOne, KindDeleteMany:
		var primitives []InversePrimitive
		for _, doc := range op.PreState {
			primitives = append(primitives, InversePrimitive{
				Kind:     PrimitiveInsert,
				Document: bsonkit.Clone(doc),
			})
		}
		return primitives, nil

	case KindUpdateOne, KindUpdateMany, KindReplaceOne:
		var primitives []InversePrimitive
		for _, doc := range op.PreState {
			id, ok := bsonkit.LookupID(doc)
			if !ok {
				return nil, ErrMissingDocumentID.F("operation: %s", op.Kind)
			}
			primitives = append(primitives, InversePrimitive{
				Kind:        PrimitiveReplaceByFilter,
				Filter:      bson.M{"_id": id},
				Replacement: bsonkit.Clone(doc),
			})
		}
		return primitives, nil

	default:
		return nil, ErrUnknownOperation.F("%q", op.Kind)
	}
}

// writeModel translates the primitive to the bulk write model that replays it.
// Replays are idempotent: restores go down as upserts keyed on _id, so a
// retried rollback finds the documents a prior partial run already restored
// and overwrites them instead of conflicting with them.
func (p InversePrimitive) writeModel() (docstore.WriteModel, error) {
	switch p.Kind {
	case PrimitiveInsert:
		if id, ok := bsonkit.LookupID(p.Document); ok {
			return docstore.ReplaceOneModel{Filter: bson.M{"_id": id}, Replacement: p.Document, Upsert: true}, nil
		}
		return docstore.InsertOneModel{Document: p.Document}, nil
	case PrimitiveDeleteByFilter:
		return docstore.DeleteManyModel{Filter: p.Filter}, nil
	case PrimitiveReplaceByFilter:
		return docstore.ReplaceOneModel{Filter: p.Filter, Replacement: p.Replacement, Upsert: true}, nil
	default:
		return nil, ErrUnknownOperation.F("inverse primitive kind %q", p.Kind)
	}
}
