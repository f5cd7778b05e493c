package rollback_test

import (
	"testing"

	"go.llib.dev/mongomigrate/pkg/bsonkit"
	"go.llib.dev/mongomigrate/rollback"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/random"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var rnd = random.New(random.CryptoSeed{})

func TestResolve_insertOne(t *testing.T) {
	t.Run("inverse deletes by the assigned identifier", func(t *testing.T) {
		id := bson.NewObjectID()
		primitives, err := rollback.Resolve(rollback.Operation{
			Kind:        rollback.KindInsertOne,
			Documents:   []bson.M{{"name": "John"}},
			InsertedIDs: []any{id},
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, len(primitives))
		assert.Equal(t, rollback.PrimitiveDeleteByFilter, primitives[0].Kind)
		assert.True(t, bsonkit.Eq(primitives[0].Filter, bson.M{"_id": id}))
	})
	t.Run("missing inserted id is an error", func(t *testing.T) {
		_, err := rollback.Resolve(rollback.Operation{Kind: rollback.KindInsertOne})
		assert.ErrorIs(t, err, rollback.ErrMissingInsertedID)
	})
}

func TestResolve_insertMany(t *testing.T) {
	t.Run("one inverse matching the set of assigned identifiers", func(t *testing.T) {
		ids := []any{bson.NewObjectID(), bson.NewObjectID(), bson.NewObjectID()}
		primitives, err := rollback.Resolve(rollback.Operation{
			Kind:        rollback.KindInsertMany,
			InsertedIDs: ids,
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, len(primitives))
		assert.Equal(t, rollback.PrimitiveDeleteByFilter, primitives[0].Kind)
		in := primitives[0].Filter["_id"].(bson.M)["$in"].(bson.A)
		assert.Equal(t, len(ids), len(in))
		for i, id := range ids {
			assert.True(t, bsonkit.Eq(in[i], id))
		}
	})
	t.Run("zero inserted documents yield zero primitives", func(t *testing.T) {
		primitives, err := rollback.Resolve(rollback.Operation{Kind: rollback.KindInsertMany})
		assert.NoError(t, err)
		assert.Empty(t, primitives)
	})
}

func TestResolve_deleteOne(t *testing.T) {
	t.Run("inverse reinserts the pre-state document", func(t *testing.T) {
		doc := bson.M{"_id": "1", "name": "John"}
		primitives, err := rollback.Resolve(rollback.Operation{
			Kind:     rollback.KindDeleteOne,
			Filter:   bson.M{"name": "John"},
			PreState: []bson.M{doc},
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, len(primitives))
		assert.Equal(t, rollback.PrimitiveInsert, primitives[0].Kind)
		assert.True(t, bsonkit.Eq(primitives[0].Document, doc))
	})
	t.Run("no match is a legitimate no-op", func(t *testing.T) {
		primitives, err := rollback.Resolve(rollback.Operation{
			Kind:   rollback.KindDeleteOne,
			Filter: bson.M{"name": rnd.String()},
		})
		assert.NoError(t, err)
		assert.Empty(t, primitives)
	})
}

func TestResolve_deleteMany(t *testing.T) {
	docs := []bson.M{
		{"_id": "1", "name": "John"},
		{"_id": "2", "name": "Jane"},
	}
	primitives, err := rollback.Resolve(rollback.Operation{
		Kind:     rollback.KindDeleteMany,
		PreState: docs,
	})
	assert.NoError(t, err)
	assert.Equal(t, len(docs), len(primitives))
	for i, p := range primitives {
		assert.Equal(t, rollback.PrimitiveInsert, p.Kind)
		assert.True(t, bsonkit.Eq(p.Document, docs[i]))
	}
}

func TestResolve_updateFamily(t *testing.T) {
	for _, kind := range []rollback.Kind{rollback.KindUpdateOne, rollback.KindUpdateMany, rollback.KindReplaceOne} {
		t.Run(string(kind), func(t *testing.T) {
			t.Run("inverse restores each pre-state document by identifier", func(t *testing.T) {
				docs := []bson.M{
					{"_id": "1", "age": 21, "active": false},
					{"_id": "2", "age": 34, "active": false},
				}
				if kind != rollback.KindUpdateMany {
					docs = docs[:1]
				}
				primitives, err := rollback.Resolve(rollback.Operation{
					Kind:     kind,
					Filter:   bson.M{"age": bson.M{"$gt": 20}},
					PreState: docs,
				})
				assert.NoError(t, err)
				assert.Equal(t, len(docs), len(primitives))
				for i, p := range primitives {
					assert.Equal(t, rollback.PrimitiveReplaceByFilter, p.Kind)
					assert.True(t, bsonkit.Eq(p.Filter, bson.M{"_id": docs[i]["_id"]}))
					assert.True(t, bsonkit.Eq(p.Replacement, docs[i]))
				}
			})
			t.Run("no match yields zero primitives", func(t *testing.T) {
				primitives, err := rollback.Resolve(rollback.Operation{Kind: kind})
				assert.NoError(t, err)
				assert.Empty(t, primitives)
			})
			t.Run("pre-state document without _id is an error", func(t *testing.T) {
				_, err := rollback.Resolve(rollback.Operation{
					Kind:     kind,
					PreState: []bson.M{{"name": "John"}},
				})
				assert.ErrorIs(t, err, rollback.ErrMissingDocumentID)
			})
		})
	}
}

func TestResolve_unknownKind(t *testing.T) {
	_, err := rollback.Resolve(rollback.Operation{Kind: rollback.Kind(rnd.StringNC(8, random.CharsetAlpha()))})
	assert.ErrorIs(t, err, rollback.ErrUnknownOperation)
}

func TestResolve_isPureOfItsInputs(t *testing.T) {
	doc := bson.M{"_id": "1", "name": "John"}
	primitives, err := rollback.Resolve(rollback.Operation{
		Kind:     rollback.KindDeleteOne,
		PreState: []bson.M{doc},
	})
	assert.NoError(t, err)
	primitives[0].Document["name"] = "mutated"
	assert.Equal(t, "John", doc["name"].(string))
}
