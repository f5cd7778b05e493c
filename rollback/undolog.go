package rollback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.llib.dev/mongomigrate/port/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Record is one persisted inverse operation.
//
// Records are owned by the undo log: the interception layer creates them,
// the rollback executor consumes and deletes them.
type Record struct {
	ID          string           `bson:"_id"`
	MigrationID string           `bson:"migrationId"`
	Collection  string           `bson:"collection"`
	Sequence    int64            `bson:"sequence"`
	Timestamp   time.Time        `bson:"timestamp"`
	Payload     InversePrimitive `bson:"payload"`
}

// Log is the append-only, migration scoped store of undo records.
//
// The log lives in a collection of the same database the migration mutates,
// so a crash between a forward write and its rollback finds data and log
// in one place. The log's own collection is always excluded from interception.
type Log struct {
	// Collection is the undo log collection.
	Collection docstore.Collection
}

// Append stores every given record, or none of them: the records of one
// forward call go down as a single ordered bulk batch.
func (l Log) Append(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]docstore.WriteModel, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		doc, err := recordToDocument(r)
		if err != nil {
			return err
		}
		models = append(models, docstore.InsertOneModel{Document: doc})
	}
	_, err := l.Collection.BulkWrite(ctx, models)
	return err
}

// ReadAll returns the migration's undo records grouped by target collection.
func (l Log) ReadAll(ctx context.Context, migrationID string) (map[string][]Record, error) {
	grouped := make(map[string][]Record)
	for doc, err := range l.Collection.Find(ctx, l.filter(migrationID)) {
		if err != nil {
			return nil, err
		}
		r, err := documentToRecord(doc)
		if err != nil {
			return nil, err
		}
		grouped[r.Collection] = append(grouped[r.Collection], r)
	}
	return grouped, nil
}

// DistinctTargets returns the names of the collections
// that have undo records for the given migration.
func (l Log) DistinctTargets(ctx context.Context, migrationID string) ([]string, error) {
	values, err := l.Collection.Distinct(ctx, "collection", l.filter(migrationID))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range values {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Count returns the number of pending undo records for the given migration.
func (l Log) Count(ctx context.Context, migrationID string) (int, error) {
	var n int
	for _, err := range l.Collection.Find(ctx, l.filter(migrationID)) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Purge deletes every undo record of the given migration.
func (l Log) Purge(ctx context.Context, migrationID string) error {
	_, err := l.Collection.DeleteMany(ctx, l.filter(migrationID))
	return err
}

func (l Log) filter(migrationID string) bson.M {
	return bson.M{"migrationId": migrationID}
}

// The bson codec is the single source of truth for the persisted record shape;
// both directions go through the struct tags of Record.

func recordToDocument(r Record) (bson.M, error) {
	data, err := bson.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func documentToRecord(doc bson.M) (Record, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	var r Record
	if err := bson.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
