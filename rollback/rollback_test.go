package rollback_test

import (
	"testing"

	"go.llib.dev/mongomigrate/rollback"
	"go.llib.dev/testcase/assert"
)

func TestSession_NextSequence(t *testing.T) {
	var s rollback.Session
	assert.Equal(t, int64(1), s.NextSequence())
	assert.Equal(t, int64(2), s.NextSequence())
	assert.Equal(t, int64(3), s.NextSequence())
}

func TestConfig_IsExcluded(t *testing.T) {
	conf := exampleConfig()
	assert.True(t, conf.IsExcluded(changelogName))
	assert.True(t, conf.IsExcluded(lockName))
	assert.True(t, conf.IsExcluded(undoLogName))
	assert.False(t, conf.IsExcluded("users"))

	t.Run("unset names never exclude the empty string", func(t *testing.T) {
		assert.False(t, rollback.Config{}.IsExcluded(""))
	})
}

func TestOperationError(t *testing.T) {
	cause := rnd.Error()
	err := rollback.OperationError{Op: rollback.KindUpdateOne, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contain(t, err.Error(), string(rollback.KindUpdateOne))
}

func TestExecutionError(t *testing.T) {
	cause := rnd.Error()
	err := rollback.ExecutionError{Collection: "users", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contain(t, err.Error(), "users")
}
