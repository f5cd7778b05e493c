// Package docstore describes the document store surface the migration tool consumes.
//
// The port mirrors the conventional mongodb collection API, reduced to the
// operations migrations actually issue. Concrete implementations live under
// adapter; the rollback subsystem only depends on this package.
package docstore

import (
	"context"
	"iter"

	"go.llib.dev/mongomigrate/pkg/errorkit"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrDuplicateKey is returned when an insert would violate identifier uniqueness.
const ErrDuplicateKey errorkit.Error = "duplicate key"

// Connection provides access to named collections of a single database.
type Connection interface {
	// Collection returns a handle for the collection with the given name.
	// The collection doesn't have to exist prior to this call.
	Collection(name string) Collection
}

// Collection is a handle to a named document collection.
type Collection interface {
	// Name returns the name of the collection.
	Name() string

	Reader
	Writer
	BulkWriter
}

// Reader contains the read operations of a Collection.
type Reader interface {
	// FindOne returns the first document matching the filter.
	// The found bool tells whether there was a match; absence is not an error.
	FindOne(ctx context.Context, filter bson.M) (doc bson.M, found bool, err error)
	// Find returns the documents matching the filter as a lazy, finite and
	// restartable sequence. Ranging over the sequence again re-executes the query.
	Find(ctx context.Context, filter bson.M) iter.Seq2[bson.M, error]
	// Distinct returns the distinct values of the given field
	// across the documents matching the filter.
	Distinct(ctx context.Context, field string, filter bson.M) ([]any, error)
}

// Writer contains the mutating operations of a Collection.
type Writer interface {
	// InsertOne stores the given document.
	// When the document lacks an _id, the store assigns one,
	// and the result exposes it.
	InsertOne(ctx context.Context, document bson.M) (InsertOneResult, error)
	// InsertMany stores the given documents in order, stopping at the first failure.
	InsertMany(ctx context.Context, documents []bson.M) (InsertManyResult, error)
	// UpdateOne applies the update operators to the first document matching the filter.
	UpdateOne(ctx context.Context, filter, update bson.M) (UpdateResult, error)
	// UpdateMany applies the update operators to every document matching the filter.
	UpdateMany(ctx context.Context, filter, update bson.M) (UpdateResult, error)
	// ReplaceOne swaps the first document matching the filter for the replacement,
	// keeping the original document's identifier.
	ReplaceOne(ctx context.Context, filter, replacement bson.M) (UpdateResult, error)
	// DeleteOne removes the first document matching the filter.
	DeleteOne(ctx context.Context, filter bson.M) (DeleteResult, error)
	// DeleteMany removes every document matching the filter.
	DeleteMany(ctx context.Context, filter bson.M) (DeleteResult, error)
}

// BulkWriter executes a sequence of write models as one ordered batch.
type BulkWriter interface {
	// BulkWrite executes the write models in order with stop-on-first-error
	// semantics. Atomicity of the batch is implementation defined:
	// adapters provide the strongest guarantee their store natively offers.
	BulkWrite(ctx context.Context, models []WriteModel) (BulkWriteResult, error)
}

type InsertOneResult struct {
	// InsertedID is the identifier the stored document ended up with.
	InsertedID any
}

type InsertManyResult struct {
	// InsertedIDs are the identifiers of the stored documents, in input order.
	InsertedIDs []any
}

type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

type DeleteResult struct {
	DeletedCount int64
}

type BulkWriteResult struct {
	InsertedCount int64
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
}

// WriteModel is one write of a bulk batch. The implementations are
// InsertOneModel, DeleteOneModel, DeleteManyModel and ReplaceOneModel.
type WriteModel interface{ writeModel() }

type InsertOneModel struct {
	Document bson.M
}

type DeleteOneModel struct {
	Filter bson.M
}

type DeleteManyModel struct {
	Filter bson.M
}

type ReplaceOneModel struct {
	Filter      bson.M
	Replacement bson.M
	// Upsert makes the replace insert the replacement when the filter has no match.
	Upsert bool
}

func (InsertOneModel) writeModel()  {}
func (DeleteOneModel) writeModel()  {}
func (DeleteManyModel) writeModel() {}
func (ReplaceOneModel) writeModel() {}
