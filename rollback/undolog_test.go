package rollback_test

import (
	"context"
	"testing"
	"time"

	"go.llib.dev/mongomigrate/adapter/memory"
	"go.llib.dev/mongomigrate/pkg/bsonkit"
	"go.llib.dev/mongomigrate/rollback"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func exampleLog(tb testing.TB) rollback.Log {
	tb.Helper()
	conn := memory.NewConnection()
	return rollback.Log{Collection: conn.Collection(undoLogName)}
}

func exampleRecord(migrationID, collection string, seq int64) rollback.Record {
	return rollback.Record{
		MigrationID: migrationID,
		Collection:  collection,
		Sequence:    seq,
		Timestamp:   clock.Now(),
		Payload: rollback.InversePrimitive{
			Kind:   rollback.PrimitiveDeleteByFilter,
			Filter: bson.M{"_id": rnd.String()},
		},
	}
}

func TestLog_Append(t *testing.T) {
	t.Run("records survive a write and read back cycle", func(t *testing.T) {
		log := exampleLog(t)
		ctx := context.Background()
		timestamp := clock.Now().Truncate(time.Millisecond)
		original := rollback.Record{
			ID:          "r-1",
			MigrationID: "m-1",
			Collection:  "users",
			Sequence:    7,
			Timestamp:   timestamp,
			Payload: rollback.InversePrimitive{
				Kind:        rollback.PrimitiveReplaceByFilter,
				Filter:      bson.M{"_id": "u1"},
				Replacement: bson.M{"_id": "u1", "name": "John", "age": 25},
			},
		}
		assert.NoError(t, log.Append(ctx, []rollback.Record{original}))

		grouped, err := log.ReadAll(ctx, "m-1")
		assert.NoError(t, err)
		records := grouped["users"]
		assert.Equal(t, 1, len(records))
		got := records[0]
		assert.Equal(t, original.ID, got.ID)
		assert.Equal(t, original.MigrationID, got.MigrationID)
		assert.Equal(t, original.Sequence, got.Sequence)
		assert.True(t, got.Timestamp.Equal(timestamp))
		assert.Equal(t, original.Payload.Kind, got.Payload.Kind)
		assert.True(t, bsonkit.Eq(original.Payload.Filter, got.Payload.Filter))
		assert.True(t, bsonkit.Eq(original.Payload.Replacement, got.Payload.Replacement))
	})
	t.Run("a missing record id is assigned", func(t *testing.T) {
		log := exampleLog(t)
		ctx := context.Background()
		assert.NoError(t, log.Append(ctx, []rollback.Record{exampleRecord("m-1", "users", 1)}))
		grouped, err := log.ReadAll(ctx, "m-1")
		assert.NoError(t, err)
		assert.NotEmpty(t, grouped["users"][0].ID)
	})
	t.Run("appending nothing is a no-op", func(t *testing.T) {
		log := exampleLog(t)
		assert.NoError(t, log.Append(context.Background(), nil))
		n, err := log.Count(context.Background(), "m-1")
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestLog_ReadAll_groupsByCollection(t *testing.T) {
	log := exampleLog(t)
	ctx := context.Background()
	assert.NoError(t, log.Append(ctx, []rollback.Record{
		exampleRecord("m-1", "users", 1),
		exampleRecord("m-1", "orders", 2),
		exampleRecord("m-1", "users", 3),
		exampleRecord("m-2", "users", 1),
	}))

	grouped, err := log.ReadAll(ctx, "m-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(grouped))
	assert.Equal(t, 2, len(grouped["users"]))
	assert.Equal(t, 1, len(grouped["orders"]))
}

func TestLog_DistinctTargets(t *testing.T) {
	log := exampleLog(t)
	ctx := context.Background()
	assert.NoError(t, log.Append(ctx, []rollback.Record{
		exampleRecord("m-1", "users", 1),
		exampleRecord("m-1", "users", 2),
		exampleRecord("m-1", "orders", 3),
		exampleRecord("m-2", "payments", 1),
	}))

	targets, err := log.DistinctTargets(ctx, "m-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(targets))
	assert.Contain(t, targets, "users")
	assert.Contain(t, targets, "orders")
}

func TestLog_Purge(t *testing.T) {
	log := exampleLog(t)
	ctx := context.Background()
	assert.NoError(t, log.Append(ctx, []rollback.Record{
		exampleRecord("m-1", "users", 1),
		exampleRecord("m-2", "users", 1),
	}))

	assert.NoError(t, log.Purge(ctx, "m-1"))

	n, err := log.Count(ctx, "m-1")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = log.Count(ctx, "m-2")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
