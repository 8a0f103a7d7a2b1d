package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Major key 1000 is reserved for export reaper sweeps.
const (
	advisoryLockReaperMajor         = 1000
	advisoryLockReaperFailRunning   = 1 // minor key for FailStaleRunning
	advisoryLockReaperFailSubmitted = 2 // minor key for FailStaleSubmitted
)

const (
	defaultReaperReason          = "timed out"
	defaultReaperSubmittedReason = "never claimed"
)

var _ core.ReaperRepository = (*ExportRepo)(nil)

// FailStaleRunning fails running exports whose progress has not moved for MaxAge.
// Processes up to BatchSize exports per call. When another reaper holds the
// advisory lock the call is a no-op.
func (r *ExportRepo) FailStaleRunning(ctx context.Context, params core.FailStaleParams) (int64, error) {
	if params.Reason == "" {
		params.Reason = defaultReaperReason
	}
	return r.failStale(ctx, failStaleQuery{
		params:   params,
		minorKey: advisoryLockReaperFailRunning,
		sql: `
			UPDATE exports
			SET status = 'failed',
			    last_error = $1,
			    progress_updated = $2
			WHERE status = 'running'
			  AND id IN (
				SELECT id FROM exports
				WHERE status = 'running'
				  AND progress_updated < $3
				ORDER BY progress_updated
				LIMIT $4
			  )
		`,
	})
}

// FailStaleSubmitted fails exports that were never claimed within MaxAge.
func (r *ExportRepo) FailStaleSubmitted(ctx context.Context, params core.FailStaleParams) (int64, error) {
	if params.Reason == "" {
		params.Reason = defaultReaperSubmittedReason
	}
	return r.failStale(ctx, failStaleQuery{
		params:   params,
		minorKey: advisoryLockReaperFailSubmitted,
		sql: `
			UPDATE exports
			SET status = 'failed',
			    last_error = $1,
			    progress_updated = $2
			WHERE status = 'submitted'
			  AND id IN (
				SELECT id FROM exports
				WHERE status = 'submitted'
				  AND submitted < $3
				ORDER BY submitted
				LIMIT $4
			  )
		`,
	})
}

type failStaleQuery struct {
	params   core.FailStaleParams
	minorKey int
	sql      string
}

func (r *ExportRepo) failStale(ctx context.Context, q failStaleQuery) (int64, error) {
	if q.params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if q.params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.InTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// Transaction-scoped lock: concurrent reapers skip instead of double-failing.
		var locked bool
		if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, q.minorKey).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			return nil
		}

		now := r.timeProvider.Now()
		tag, err := tx.Exec(ctx, q.sql, q.params.Reason, now.UTC(), staleCutoff(now, q.params.MaxAge), q.params.BatchSize)
		if err != nil {
			return fmt.Errorf("fail stale exports: %w", err)
		}
		rowsAffected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

func staleCutoff(now time.Time, maxAge time.Duration) time.Time {
	return now.Add(-maxAge).UTC()
}
