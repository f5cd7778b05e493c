// Package mongodb provides the docstore implementation backed by
// the official mongodb driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.llib.dev/mongomigrate/pkg/errorkit"
	"go.llib.dev/mongomigrate/port/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Connect dials the given mongodb uri and returns a Connection to the named database.
func Connect(ctx context.Context, uri, database string) (*Connection, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errorkit.Merge(err, client.Disconnect(ctx))
	}
	return &Connection{DB: client.Database(database)}, nil
}

// Connection is a docstore.Connection for a single mongodb database.
type Connection struct {
	// DB is the database the collections belong to.
	DB *mongo.Database
}

func (c *Connection) Collection(name string) docstore.Collection {
	return &Collection{Coll: c.DB.Collection(name)}
}

// Close disconnects the underlying client.
func (c *Connection) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// Collection adapts a *mongo.Collection to the docstore port.
type Collection struct {
	Coll *mongo.Collection
}

func (c *Collection) Name() string { return c.Coll.Name() }

func (c *Collection) InsertOne(ctx context.Context, document bson.M) (docstore.InsertOneResult, error) {
	res, err := c.Coll.InsertOne(ctx, document)
	if err != nil {
		return docstore.InsertOneResult{}, mapWriteError(err)
	}
	return docstore.InsertOneResult{InsertedID: res.InsertedID}, nil
}

func (c *Collection) InsertMany(ctx context.Context, documents []bson.M) (docstore.InsertManyResult, error) {
	docs := make([]any, len(documents))
	for i, d := range documents {
		docs[i] = d
	}
	res, err := c.Coll.InsertMany(ctx, docs)
	var result docstore.InsertManyResult
	if res != nil {
		result.InsertedIDs = res.InsertedIDs
	}
	return result, mapWriteError(err)
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	res, err := c.Coll.UpdateOne(ctx, filter, update)
	return mapUpdateResult(res), err
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	res, err := c.Coll.UpdateMany(ctx, filter, update)
	return mapUpdateResult(res), err
}

func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement bson.M) (docstore.UpdateResult, error) {
	res, err := c.Coll.ReplaceOne(ctx, filter, replacement)
	return mapUpdateResult(res), err
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	res, err := c.Coll.DeleteOne(ctx, filter)
	return mapDeleteResult(res), err
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	res, err := c.Coll.DeleteMany(ctx, filter)
	return mapDeleteResult(res), err
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M) (bson.M, bool, error) {
	var doc bson.M
	err := c.Coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Find returns a restartable sequence: every range over it re-executes the query.
func (c *Collection) Find(ctx context.Context, filter bson.M) iter.Seq2[bson.M, error] {
	return func(yield func(bson.M, error) bool) {
		cur, err := c.Coll.Find(ctx, filter)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = cur.Close(ctx) }()
		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (c *Collection) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	var values []any
	if err := c.Coll.Distinct(ctx, field, filter).Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *Collection) BulkWrite(ctx context.Context, models []docstore.WriteModel) (docstore.BulkWriteResult, error) {
	if len(models) == 0 {
		return docstore.BulkWriteResult{}, nil
	}
	ms := make([]mongo.WriteModel, 0, len(models))
	for _, model := range models {
		switch model := model.(type) {
		case docstore.InsertOneModel:
			ms = append(ms, mongo.NewInsertOneModel().SetDocument(model.Document))
		case docstore.DeleteOneModel:
			ms = append(ms, mongo.NewDeleteOneModel().SetFilter(model.Filter))
		case docstore.DeleteManyModel:
			ms = append(ms, mongo.NewDeleteManyModel().SetFilter(model.Filter))
		case docstore.ReplaceOneModel:
			ms = append(ms, mongo.NewReplaceOneModel().
				SetFilter(model.Filter).
				SetReplacement(model.Replacement).
				SetUpsert(model.Upsert))
		default:
			return docstore.BulkWriteResult{}, fmt.Errorf("unsupported write model type: %T", model)
		}
	}
	res, err := c.Coll.BulkWrite(ctx, ms, options.BulkWrite().SetOrdered(true))
	var result docstore.BulkWriteResult
	if res != nil {
		result = docstore.BulkWriteResult{
			InsertedCount: res.InsertedCount,
			MatchedCount:  res.MatchedCount,
			ModifiedCount: res.ModifiedCount,
			DeletedCount:  res.DeletedCount,
		}
	}
	return result, mapWriteError(err)
}

func mapUpdateResult(res *mongo.UpdateResult) docstore.UpdateResult {
	if res == nil {
		return docstore.UpdateResult{}
	}
	return docstore.UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
	}
}

func mapDeleteResult(res *mongo.DeleteResult) docstore.DeleteResult {
	if res == nil {
		return docstore.DeleteResult{}
	}
	return docstore.DeleteResult{DeletedCount: res.DeletedCount}
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return docstore.ErrDuplicateKey.Wrap(err)
	}
	return err
}
