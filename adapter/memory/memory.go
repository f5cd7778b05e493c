// Package memory provides an in-memory docstore implementation.
//
// It keeps documents in insertion order, so the "first match" of FindOne,
// UpdateOne, ReplaceOne and DeleteOne is deterministic. Filters and update
// operators are evaluated with bsonkit, client side.
package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"go.llib.dev/mongomigrate/pkg/bsonkit"
	"go.llib.dev/mongomigrate/port/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func NewConnection() *Connection {
	return &Connection{}
}

// Connection is an in-memory database: a set of named collections.
type Connection struct {
	m           sync.Mutex
	collections map[string]*Collection
}

func (c *Connection) Collection(name string) docstore.Collection {
	c.m.Lock()
	defer c.m.Unlock()
	if c.collections == nil {
		c.collections = make(map[string]*Collection)
	}
	if _, ok := c.collections[name]; !ok {
		c.collections[name] = &Collection{name: name}
	}
	return c.collections[name]
}

// Collection is a mutex guarded, insertion ordered document table.
type Collection struct {
	name string
	m    sync.Mutex
	docs []bson.M
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) InsertOne(ctx context.Context, document bson.M) (docstore.InsertOneResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.InsertOneResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	docs, id, err := insert(c.docs, document)
	if err != nil {
		return docstore.InsertOneResult{}, err
	}
	c.docs = docs
	return docstore.InsertOneResult{InsertedID: id}, nil
}

func (c *Collection) InsertMany(ctx context.Context, documents []bson.M) (docstore.InsertManyResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.InsertManyResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	var result docstore.InsertManyResult
	for _, document := range documents {
		docs, id, err := insert(c.docs, document)
		if err != nil {
			return result, err
		}
		c.docs = docs
		result.InsertedIDs = append(result.InsertedIDs, id)
	}
	return result, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.UpdateResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	i, ok := firstMatch(c.docs, filter)
	if !ok {
		return docstore.UpdateResult{}, nil
	}
	return c.updateAt(i, update)
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.M) (docstore.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.UpdateResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	var result docstore.UpdateResult
	for i := range c.docs {
		if !bsonkit.Match(c.docs[i], filter) {
			continue
		}
		r, err := c.updateAt(i, update)
		if err != nil {
			return result, err
		}
		result.MatchedCount += r.MatchedCount
		result.ModifiedCount += r.ModifiedCount
	}
	return result, nil
}

func (c *Collection) updateAt(i int, update bson.M) (docstore.UpdateResult, error) {
	updated, err := bsonkit.Apply(c.docs[i], update)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	if id, ok := bsonkit.LookupID(updated); !ok || !sameID(c.docs[i], id) {
		return docstore.UpdateResult{}, errImmutableID(c.docs[i])
	}
	result := docstore.UpdateResult{MatchedCount: 1}
	if !bsonkit.Eq(c.docs[i], updated) {
		result.ModifiedCount = 1
	}
	c.docs[i] = updated
	return result, nil
}

func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement bson.M) (docstore.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.UpdateResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	docs, result, err := replaceFirst(c.docs, filter, replacement, false)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	c.docs = docs
	return result, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.DeleteResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	i, ok := firstMatch(c.docs, filter)
	if !ok {
		return docstore.DeleteResult{}, nil
	}
	c.docs = slices.Delete(c.docs, i, i+1)
	return docstore.DeleteResult{DeletedCount: 1}, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (docstore.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.DeleteResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	var kept []bson.M
	var result docstore.DeleteResult
	for _, doc := range c.docs {
		if bsonkit.Match(doc, filter) {
			result.DeletedCount++
			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept
	return result, nil
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M) (bson.M, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	i, ok := firstMatch(c.docs, filter)
	if !ok {
		return nil, false, nil
	}
	return bsonkit.Clone(c.docs[i]), true, nil
}

// Find takes a snapshot of the matching documents when the iteration begins,
// so ranging over the returned sequence again observes the then current state.
func (c *Collection) Find(ctx context.Context, filter bson.M) iter.Seq2[bson.M, error] {
	return func(yield func(bson.M, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		for _, doc := range c.snapshot(filter) {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (c *Collection) snapshot(filter bson.M) []bson.M {
	c.m.Lock()
	defer c.m.Unlock()
	var matched []bson.M
	for _, doc := range c.docs {
		if bsonkit.Match(doc, filter) {
			matched = append(matched, bsonkit.Clone(doc))
		}
	}
	return matched
}

func (c *Collection) Distinct(ctx context.Context, field string, filter bson.M) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var values []any
	for _, doc := range c.snapshot(filter) {
		value, ok := bsonkit.Lookup(doc, field)
		if !ok {
			continue
		}
		if !containsEq(values, value) {
			values = append(values, value)
		}
	}
	return values, nil
}

// BulkWrite stages the whole batch on a copy of the table and only publishes
// the staged state when every model succeeded, making the batch atomic.
func (c *Collection) BulkWrite(ctx context.Context, models []docstore.WriteModel) (docstore.BulkWriteResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.BulkWriteResult{}, err
	}
	c.m.Lock()
	defer c.m.Unlock()
	staged := slices.Clone(c.docs)
	var result docstore.BulkWriteResult
	for i, model := range models {
		var err error
		staged, err = applyWriteModel(staged, model, &result)
		if err != nil {
			return docstore.BulkWriteResult{}, fmt.Errorf("bulk write model #%d: %w", i, err)
		}
	}
	c.docs = staged
	return result, nil
}

func applyWriteModel(docs []bson.M, model docstore.WriteModel, result *docstore.BulkWriteResult) ([]bson.M, error) {
	switch model := model.(type) {
	case docstore.InsertOneModel:
		docs, _, err := insert(docs, model.Document)
		if err != nil {
			return nil, err
		}
		result.InsertedCount++
		return docs, nil
	case docstore.DeleteOneModel:
		i, ok := firstMatch(docs, model.Filter)
		if !ok {
			return docs, nil
		}
		result.DeletedCount++
		return slices.Delete(docs, i, i+1), nil
	case docstore.DeleteManyModel:
		var kept []bson.M
		for _, doc := range docs {
			if bsonkit.Match(doc, model.Filter) {
				result.DeletedCount++
				continue
			}
			kept = append(kept, doc)
		}
		return kept, nil
	case docstore.ReplaceOneModel:
		docs, r, err := replaceFirst(docs, model.Filter, model.Replacement, model.Upsert)
		if err != nil {
			return nil, err
		}
		result.MatchedCount += r.MatchedCount
		result.ModifiedCount += r.ModifiedCount
		return docs, nil
	default:
		return nil, fmt.Errorf("unsupported write model type: %T", model)
	}
}

func insert(docs []bson.M, document bson.M) ([]bson.M, any, error) {
	doc := bsonkit.Clone(document)
	id, ok := bsonkit.LookupID(doc)
	if !ok {
		id = bson.NewObjectID()
		doc["_id"] = id
	}
	for _, existing := range docs {
		if sameID(existing, id) {
			return nil, nil, docstore.ErrDuplicateKey.F("_id: %v", id)
		}
	}
	return append(docs, doc), id, nil
}

func replaceFirst(docs []bson.M, filter, replacement bson.M, upsert bool) ([]bson.M, docstore.UpdateResult, error) {
	i, ok := firstMatch(docs, filter)
	if !ok {
		if !upsert {
			return docs, docstore.UpdateResult{}, nil
		}
		doc := bsonkit.Clone(replacement)
		if _, ok := bsonkit.LookupID(doc); !ok {
			if id, ok := literalID(filter); ok {
				doc["_id"] = id
			}
		}
		docs, _, err := insert(docs, doc)
		return docs, docstore.UpdateResult{}, err
	}
	doc := bsonkit.Clone(replacement)
	if id, ok := bsonkit.LookupID(doc); ok {
		if !sameID(docs[i], id) {
			return nil, docstore.UpdateResult{}, errImmutableID(docs[i])
		}
	} else {
		doc["_id"] = docs[i]["_id"]
	}
	result := docstore.UpdateResult{MatchedCount: 1}
	if !bsonkit.Eq(docs[i], doc) {
		result.ModifiedCount = 1
	}
	docs[i] = doc
	return docs, result, nil
}

func firstMatch(docs []bson.M, filter bson.M) (int, bool) {
	for i, doc := range docs {
		if bsonkit.Match(doc, filter) {
			return i, true
		}
	}
	return 0, false
}

// literalID extracts the _id from a filter when it is a plain equality value.
func literalID(filter bson.M) (any, bool) {
	id, ok := filter["_id"]
	if !ok {
		return nil, false
	}
	switch id.(type) {
	case bson.M, map[string]any, bson.D:
		return nil, false
	default:
		return id, true
	}
}

func sameID(doc bson.M, id any) bool {
	current, ok := bsonkit.LookupID(doc)
	return ok && bsonkit.Eq(current, id)
}

func containsEq(vs []any, v any) bool {
	for _, e := range vs {
		if bsonkit.Eq(e, v) {
			return true
		}
	}
	return false
}

func errImmutableID(doc bson.M) error {
	id, _ := bsonkit.LookupID(doc)
	return fmt.Errorf("the _id field of a stored document is immutable (_id: %v)", id)
}
