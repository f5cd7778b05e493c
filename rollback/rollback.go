// Package rollback implements the auto-rollback subsystem of the migration tool.
//
// Migration scripts receive their collection handles through an Interceptor,
// which transparently records the inverse of every mutating write into a
// migration scoped undo log. When a migration needs to be reverted, Rollback
// replays the logged inverses in reverse chronological order and purges the
// log once every targeted collection has been restored.
package rollback

import (
	"fmt"

	"go.llib.dev/mongomigrate/pkg/errorkit"
)

const (
	// ErrUndoLogNotConfigured is returned when undo logging would be needed,
	// but no undo log collection name is configured.
	ErrUndoLogNotConfigured errorkit.Error = "no undo log collection is configured"
	// ErrNotInRollbackMode is returned when Rollback is invoked
	// while the session is not in rollback mode.
	ErrNotInRollbackMode errorkit.Error = "the session is not in rollback mode"
)

// Session holds the state of one migration execution.
//
// It is owned and mutated by the migration runner, except for the sequence
// counter, which only the interception layer advances. A session belongs to a
// single active migration at a time; the runner's lock guarantees that, so the
// counter needs no synchronisation.
type Session struct {
	// MigrationID identifies the migration unit being executed.
	// It scopes the undo log records this session produces.
	MigrationID string
	// RollbackMode tells that the session is currently reverting the migration.
	// While set, writes are not intercepted and Rollback is permitted to run.
	RollbackMode bool
	// AutoRollback enables undo logging for the session's forward writes.
	AutoRollback bool

	sequence int64
}

// NextSequence returns the next per-session sequence number.
// The returned values are strictly increasing and never reused within a session.
func (s *Session) NextSequence() int64 {
	s.sequence++
	return s.sequence
}

// Config names the bookkeeping collections of the migration tool.
type Config struct {
	// ChangelogCollection is the collection tracking executed migrations.
	ChangelogCollection string
	// LockCollection is the collection backing the migration lock.
	LockCollection string
	// UndoLogCollection is the collection holding the undo log records.
	UndoLogCollection string
}

// IsExcluded tells if writes to the named collection must not be intercepted.
// The bookkeeping collections are excluded so the undo log never tracks
// the changelog, the lock, or its own writes.
func (c Config) IsExcluded(name string) bool {
	for _, excluded := range []string{c.ChangelogCollection, c.LockCollection, c.UndoLogCollection} {
		if excluded != "" && excluded == name {
			return true
		}
	}
	return false
}

// OperationError reports a failed intercepted write: the forward write itself,
// its pre-state read, the inverse computation, or the undo log append.
type OperationError struct {
	// Op is the operation kind the failure belongs to.
	Op Kind
	// Cause is the original failure.
	Cause error
}

func (err OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", err.Op, err.Cause)
}

func (err OperationError) Unwrap() error { return err.Cause }

// ExecutionError reports a rollback batch that failed partway through replay.
// The undo log is left intact, so a retried rollback can resume from it.
type ExecutionError struct {
	// Collection is the target collection whose replay failed.
	Collection string
	// Cause is the original failure.
	Cause error
}

func (err ExecutionError) Error() string {
	return fmt.Sprintf("rollback of collection %q failed: %s", err.Collection, err.Cause)
}

func (err ExecutionError) Unwrap() error { return err.Cause }
