package rollback

import (
	"cmp"
	"context"
	"slices"

	"go.llib.dev/mongomigrate/pkg/logging"
	"go.llib.dev/mongomigrate/port/docstore"
)

// Rollback replays the undo log of the session's migration and restores every
// targeted collection to its pre-migration state.
//
// Each collection's records are replayed strictly last-in-first-out as one
// ordered batch with stop-on-first-error semantics. The undo log is purged
// only after every targeted collection's batch fully succeeded; a partial
// failure leaves the entire log intact, so a retried rollback can resume from
// it. The order across collections is not significant, as forward writes
// never cross collections within one logical operation.
func Rollback(ctx context.Context, conn docstore.Connection, session *Session, conf Config) error {
	if session == nil || !session.RollbackMode {
		return ErrNotInRollbackMode
	}
	if conf.UndoLogCollection == "" {
		return ErrUndoLogNotConfigured
	}
	ctx = logging.ContextWith(ctx, logging.Field("migration", session.MigrationID))
	log := Log{Collection: conn.Collection(conf.UndoLogCollection)}

	targets, err := log.DistinctTargets(ctx, session.MigrationID)
	if err != nil {
		return err
	}
	grouped, err := log.ReadAll(ctx, session.MigrationID)
	if err != nil {
		return err
	}
	for _, target := range targets {
		records := grouped[target]
		sortForReplay(records)
		models, err := replayModels(records)
		if err != nil {
			return ExecutionError{Collection: target, Cause: err}
		}
		logging.Info(ctx, "replaying undo records",
			logging.Field("collection", target),
			logging.Field("records", len(records)))
		if _, err := conn.Collection(target).BulkWrite(ctx, models); err != nil {
			logging.Error(ctx, "undo replay failed, the undo log is left intact for retry",
				logging.Field("collection", target),
				logging.ErrField(err))
			return ExecutionError{Collection: target, Cause: err}
		}
	}
	if err := log.Purge(ctx, session.MigrationID); err != nil {
		return err
	}
	logging.Info(ctx, "rollback complete",
		logging.Field("collections", len(targets)))
	return nil
}

// sortForReplay orders records by (timestamp, sequence) descending:
// the most recently logged inverse runs first. Undoing write N+1 before
// write N matters whenever N+1's effect depended on the state N produced.
func sortForReplay(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Sequence, a.Sequence)
	})
}

func replayModels(records []Record) ([]docstore.WriteModel, error) {
	models := make([]docstore.WriteModel, 0, len(records))
	for _, r := range records {
		model, err := r.Payload.writeModel()
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	return models, nil
}
