package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ourresearch/openalex-formatter/internal/data/pgxutil"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

// claimNextSQL flips the oldest submitted export to running. Concurrent
// claimers skip rows locked by each other, so every export is claimed once.
const claimNextSQL = `
  WITH cte AS (
    SELECT id FROM exports
    WHERE status = 'submitted'
    ORDER BY submitted ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE exports e
  SET
    status = 'running',
    progress_updated = $1
  FROM cte
  WHERE e.id = cte.id
  RETURNING e.id, e.query_url, e.format, e.status, e.progress, e.result_url, e.args, e.is_async, e.last_error, e.submitted, e.progress_updated`

// ClaimNext claims the oldest submitted export for processing.
// Returns model.ErrNoExportsAvailable when the queue is empty.
func (r *ExportRepo) ClaimNext(ctx context.Context) (*model.Export, error) {
	var export *model.Export
	err := pgxutil.InTx(ctx, r.DB, pgxutil.ReadCommitted, func(tx pgx.Tx) error {
		rows, qerr := tx.Query(ctx, claimNextSQL, r.timeProvider.Now().UTC())
		if qerr != nil {
			return fmt.Errorf("claim export: %w", qerr)
		}
		defer rows.Close()

		e, cerr := collectExportFromRows(rows)
		if errors.Is(cerr, pgx.ErrNoRows) {
			return model.ErrNoExportsAvailable
		}
		if cerr != nil {
			return fmt.Errorf("claim export: %w", cerr)
		}
		export = e
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNoExportsAvailable) {
			return nil, model.ErrNoExportsAvailable
		}
		return nil, err
	}

	r.logger.DebugContext(ctx, "claimed export", "export_id", export.ID, "format", export.Format)
	return export, nil
}
