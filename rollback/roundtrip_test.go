package rollback_test

import (
	"context"
	"testing"

	"go.llib.dev/mongomigrate/port/docstore"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/random"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Every tracked write followed by a rollback must leave the collection
// exactly as it was before the write.
func TestRollback_roundTrip(t *testing.T) {
	type testCase struct {
		Desc    string
		Forward func(tb testing.TB, c docstore.Collection)
	}
	for _, tc := range []testCase{
		{
			Desc: "insertOne",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.InsertOne(context.Background(), randomDocument())
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "insertMany",
			Forward: func(tb testing.TB, c docstore.Collection) {
				docs := []bson.M{randomDocument(), randomDocument(), randomDocument()}
				_, err := c.InsertMany(context.Background(), docs)
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "updateOne",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.UpdateOne(context.Background(),
					bson.M{"group": "a"},
					bson.M{"$set": bson.M{"note": rnd.String()}, "$inc": bson.M{"score": 5}})
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "updateMany",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.UpdateMany(context.Background(),
					bson.M{"score": bson.M{"$gte": 0}},
					bson.M{"$unset": bson.M{"group": ""}})
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "replaceOne",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.ReplaceOne(context.Background(),
					bson.M{"group": "b"}, randomDocument())
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "deleteOne",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.DeleteOne(context.Background(), bson.M{"group": "a"})
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "deleteMany",
			Forward: func(tb testing.TB, c docstore.Collection) {
				_, err := c.DeleteMany(context.Background(), bson.M{"score": bson.M{"$gt": 10}})
				assert.NoError(tb, err)
			},
		},
		{
			Desc: "a mixed run of writes",
			Forward: func(tb testing.TB, c docstore.Collection) {
				ctx := context.Background()
				result, err := c.InsertOne(ctx, randomDocument())
				assert.NoError(tb, err)
				_, err = c.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"touched": true}})
				assert.NoError(tb, err)
				_, err = c.DeleteOne(ctx, bson.M{"_id": result.InsertedID})
				assert.NoError(tb, err)
				_, err = c.DeleteMany(ctx, bson.M{"group": "b"})
				assert.NoError(tb, err)
			},
		},
	} {
		t.Run(tc.Desc, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			seed := []bson.M{
				{"_id": bson.NewObjectID(), "group": "a", "score": 7, "tags": bson.A{"x", "y"}},
				{"_id": bson.NewObjectID(), "group": "a", "score": 42},
				{"_id": bson.NewObjectID(), "group": "b", "score": 0, "nested": bson.M{"k": "v"}},
			}
			_, err := h.Conn.Collection("subjects").InsertMany(ctx, seed)
			assert.NoError(t, err)
			before := snapshot(t, h.Conn, "subjects")

			tc.Forward(t, h.Interceptor.Collection("subjects"))

			assert.NoError(t, h.rollback(t))
			assertCollectionState(t, h.Conn, "subjects", before)
		})
	}
}

func randomDocument() bson.M {
	return bson.M{
		"name":  rnd.String(),
		"score": rnd.IntBetween(0, 100),
		"tags":  bson.A{rnd.StringNC(5, random.CharsetAlpha())},
	}
}

func snapshot(tb testing.TB, conn docstore.Connection, name string) []bson.M {
	tb.Helper()
	var docs []bson.M
	for doc, err := range conn.Collection(name).Find(context.Background(), bson.M{}) {
		assert.NoError(tb, err)
		docs = append(docs, doc)
	}
	return docs
}
