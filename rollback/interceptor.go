package rollback

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"go.llib.dev/mongomigrate/pkg/errorkit"
	"go.llib.dev/mongomigrate/pkg/logging"
	"go.llib.dev/mongomigrate/port/docstore"
	"go.llib.dev/testcase/clock"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Interceptor hands out collection handles whose mutating operations
// transparently record their inverse into the undo log.
//
// It implements docstore.Connection, so a migration script can use it as a
// drop-in replacement for the raw connection.
type Interceptor struct {
	// Connection is the raw connection the handles are built on.
	Connection docstore.Connection
	// Session is the migration session the recorded inverses belong to.
	Session *Session
	// Config names the bookkeeping collections that are never intercepted.
	Config Config
}

func (i Interceptor) Collection(name string) docstore.Collection {
	return i.WrapCollection(i.Connection.Collection(name))
}

// WrapCollection decorates the given raw collection handle. The returned
// handle has identical read behaviour and identical write return values;
// the seven mutating operations additionally append undo records as a side
// effect before returning.
//
// Excluded collections are never wrapped: the raw handle is returned as is.
func (i Interceptor) WrapCollection(raw docstore.Collection) docstore.Collection {
	if i.Config.IsExcluded(raw.Name()) {
		return raw
	}
	tracked := &trackedCollection{raw: raw, session: i.Session, config: i.Config}
	if i.Config.UndoLogCollection != "" {
		tracked.log = Log{Collection: i.Connection.Collection(i.Config.UndoLogCollection)}
	}
	return tracked
}

type trackedCollection struct {
	raw     docstore.Collection
	session *Session
	config  Config
	log     Log
}

func (c *trackedCollection) Name() string { return c.raw.Name() }

func (c *trackedCollection) FindOne(ctx context.Context, filter bson.M) (bson.M, bool, error) {
	return c.raw.FindOne(ctx, filter)
}

func (c *trackedCollection) Find(ctx context.Context, filter bson.M) iter.Seq2[bson.M, error] {
	return c.raw.Find(ctx, filter)
}

func (c *trackedCollection) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	return c.raw.Distinct(ctx, field, filter)
}

// BulkWrite passes through untracked; a migration that wants auto-rollback
// coverage uses the seven dedicated write operations.
func (c *trackedCollection) BulkWrite(ctx context.Context, models []docstore.WriteModel) (docstore.BulkWriteResult, error) {
	return c.raw.BulkWrite(ctx, models)
}

// bypass tells if the current call must pass through without interception.
func (c *trackedCollection) bypass() bool {
	return c.session == nil || c.session.RollbackMode || !c.session.AutoRollback
}

// guard fails before the forward write is attempted when undo logging
// is requested but cannot possibly store anything.
func (c *trackedCollection) guard() error {
	if c.config.UndoLogCollection == "" {
		return ErrUndoLogNotConfigured
	}
	return nil
}

func (c *trackedCollection) InsertOne(ctx context.Context, document bson.M) (docstore.InsertOneResult, error) {
	if c.bypass() {
		return c.raw.InsertOne(ctx, document)
	}
	if err := c.guard(); err != nil {
		return docstore.InsertOneResult{}, err
	}
	result, err := c.raw.InsertOne(ctx, document)
	if err != nil {
		return result, OperationError{Op: KindInsertOne, Cause: err}
	}
	op := Operation{
		Kind:        KindInsertOne,
		Documents:   []bson.M{document},
		InsertedIDs: []any{result.InsertedID},
	}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindInsertOne, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) InsertMany(ctx context.Context, documents []bson.M) (docstore.InsertManyResult, error) {
	if c.bypass() {
		return c.raw.InsertMany(ctx, documents)
	}
	if err := c.guard(); err != nil {
		return docstore.InsertManyResult{}, err
	}
	result, err := c.raw.InsertMany(ctx, documents)
	if err != nil {
		// a mid-batch failure still inserted a prefix;
		// its inverses are recorded so the partial write stays undoable
		if len(result.InsertedIDs) > 0 {
			op := Operation{
				Kind:        KindInsertMany,
				Documents:   documents,
				InsertedIDs: result.InsertedIDs,
			}
			err = errorkit.Merge(err, c.record(ctx, op))
		}
		return result, OperationError{Op: KindInsertMany, Cause: err}
	}
	op := Operation{
		Kind:        KindInsertMany,
		Documents:   documents,
		InsertedIDs: result.InsertedIDs,
	}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindInsertMany, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) UpdateOne(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	if c.bypass() {
		return c.raw.UpdateOne(ctx, filter, update)
	}
	if err := c.guard(); err != nil {
		return docstore.UpdateResult{}, err
	}
	preState, err := c.preStateOne(ctx, filter)
	if err != nil {
		return docstore.UpdateResult{}, OperationError{Op: KindUpdateOne, Cause: err}
	}
	result, err := c.raw.UpdateOne(ctx, filter, update)
	if err != nil {
		return result, OperationError{Op: KindUpdateOne, Cause: err}
	}
	op := Operation{Kind: KindUpdateOne, Filter: filter, PreState: preState}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindUpdateOne, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) UpdateMany(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	if c.bypass() {
		return c.raw.UpdateMany(ctx, filter, update)
	}
	if err := c.guard(); err != nil {
		return docstore.UpdateResult{}, err
	}
	preState, err := c.preStateAll(ctx, filter)
	if err != nil {
		return docstore.UpdateResult{}, OperationError{Op: KindUpdateMany, Cause: err}
	}
	result, err := c.raw.UpdateMany(ctx, filter, update)
	if err != nil {
		return result, OperationError{Op: KindUpdateMany, Cause: err}
	}
	op := Operation{Kind: KindUpdateMany, Filter: filter, PreState: preState}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindUpdateMany, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) ReplaceOne(ctx context.Context, filter, replacement bson.M) (docstore.UpdateResult, error) {
	if c.bypass() {
		return c.raw.ReplaceOne(ctx, filter, replacement)
	}
	if err := c.guard(); err != nil {
		return docstore.UpdateResult{}, err
	}
	preState, err := c.preStateOne(ctx, filter)
	if err != nil {
		return docstore.UpdateResult{}, OperationError{Op: KindReplaceOne, Cause: err}
	}
	result, err := c.raw.ReplaceOne(ctx, filter, replacement)
	if err != nil {
		return result, OperationError{Op: KindReplaceOne, Cause: err}
	}
	op := Operation{Kind: KindReplaceOne, Filter: filter, PreState: preState}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindReplaceOne, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) DeleteOne(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	if c.bypass() {
		return c.raw.DeleteOne(ctx, filter)
	}
	if err := c.guard(); err != nil {
		return docstore.DeleteResult{}, err
	}
	preState, err := c.preStateOne(ctx, filter)
	if err != nil {
		return docstore.DeleteResult{}, OperationError{Op: KindDeleteOne, Cause: err}
	}
	result, err := c.raw.DeleteOne(ctx, filter)
	if err != nil {
		return result, OperationError{Op: KindDeleteOne, Cause: err}
	}
	op := Operation{Kind: KindDeleteOne, Filter: filter, PreState: preState}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindDeleteOne, Cause: err}
	}
	return result, nil
}

func (c *trackedCollection) DeleteMany(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	if c.bypass() {
		return c.raw.DeleteMany(ctx, filter)
	}
	if err := c.guard(); err != nil {
		return docstore.DeleteResult{}, err
	}
	preState, err := c.preStateAll(ctx, filter)
	if err != nil {
		return docstore.DeleteResult{}, OperationError{Op: KindDeleteMany, Cause: err}
	}
	result, err := c.raw.DeleteMany(ctx, filter)
	if err != nil {
		return result, OperationError{Op: KindDeleteMany, Cause: err}
	}
	op := Operation{Kind: KindDeleteMany, Filter: filter, PreState: preState}
	if err := c.record(ctx, op); err != nil {
		return result, OperationError{Op: KindDeleteMany, Cause: err}
	}
	return result, nil
}

// preStateOne snapshots the first document matching the filter,
// the one a *One write is about to act on.
func (c *trackedCollection) preStateOne(ctx context.Context, filter bson.M) ([]bson.M, error) {
	doc, found, err := c.raw.FindOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return []bson.M{doc}, nil
}

// preStateAll snapshots every document matching the filter.
func (c *trackedCollection) preStateAll(ctx context.Context, filter bson.M) ([]bson.M, error) {
	var docs []bson.M
	for doc, err := range c.raw.Find(ctx, filter) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// record resolves the inverses of the executed operation and appends them to
// the undo log as one batch, with sequence numbers drawn from the session
// counter in primitive order.
func (c *trackedCollection) record(ctx context.Context, op Operation) error {
	primitives, err := Resolve(op)
	if err != nil {
		return err
	}
	if len(primitives) == 0 {
		return nil
	}
	now := clock.Now()
	records := make([]Record, 0, len(primitives))
	for _, p := range primitives {
		records = append(records, Record{
			ID:          uuid.NewString(),
			MigrationID: c.session.MigrationID,
			Collection:  c.raw.Name(),
			Sequence:    c.session.NextSequence(),
			Timestamp:   now,
			Payload:     p,
		})
	}
	if err := c.log.Append(ctx, records); err != nil {
		return err
	}
	logging.Debug(ctx, "inverse operations recorded",
		logging.Field("migration", c.session.MigrationID),
		logging.Field("collection", c.raw.Name()),
		logging.Field("operation", string(op.Kind)),
		logging.Field("records", len(records)))
	return nil
}
