package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data/pgxutil"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

// ExportSubmittedChannel is the NOTIFY channel signalled when an export is queued.
const ExportSubmittedChannel = "export_submitted"

// RepoConfig holds configuration options for the export repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// ExportRepo provides database operations for export jobs.
type ExportRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.ExportRepository = (*ExportRepo)(nil)

// NewExportRepo creates a new ExportRepo with the given database connection and configuration.
func NewExportRepo(db *sql.DB, cfg RepoConfig) *ExportRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ExportRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "export_repo"),
	}
}

const exportColumns = `
  id,
  query_url,
  format,
  status,
  progress,
  result_url,
  args,
  is_async,
  last_error,
  submitted,
  progress_updated
`

const insertExportSQL = `
  INSERT INTO exports (id, query_url, format, status, progress, args, is_async, submitted, progress_updated)
  VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $7)
  RETURNING ` + exportColumns

// Create persists a new submitted export and wakes idle workers.
func (r *ExportRepo) Create(ctx context.Context, req *model.CreateExportRequest) (*model.Export, error) {
	return r.insert(ctx, req, model.ExportStatusSubmitted)
}

// CreateRunning persists an export that is processed inline by the caller. No
// worker can claim it.
func (r *ExportRepo) CreateRunning(ctx context.Context, req *model.CreateExportRequest) (*model.Export, error) {
	return r.insert(ctx, req, model.ExportStatusRunning)
}

func (r *ExportRepo) insert(
	ctx context.Context,
	req *model.CreateExportRequest,
	status model.ExportStatus,
) (*model.Export, error) {
	if req == nil {
		return nil, errors.New("create export request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	args, err := json.Marshal(req.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal export args: %w", err)
	}
	now := r.timeProvider.Now().UTC()
	id := model.NewExportID(req.Format)

	var export *model.Export
	txErr := pgxutil.InTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, qerr := tx.Query(ctx, insertExportSQL, id, req.QueryURL, req.Format, status, args, req.IsAsync, now)
		if qerr != nil {
			return fmt.Errorf("insert export: %w", qerr)
		}
		e, cerr := collectExportFromRows(rows)
		rows.Close()
		if cerr != nil {
			return fmt.Errorf("collect export: %w", cerr)
		}
		export = e

		if status != model.ExportStatusSubmitted {
			return nil
		}
		if _, nerr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, ExportSubmittedChannel, id); nerr != nil {
			return fmt.Errorf("send export notification: %w", nerr)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return export, nil
}

// GetByID retrieves an export by its ID.
func (r *ExportRepo) GetByID(ctx context.Context, id string) (*model.Export, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrExportIDRequired
	}

	var export *model.Export
	err := pgxutil.WithConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+exportColumns+`
			FROM exports
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		export, err = collectExportFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return export, nil
}

// FindRecent returns the most recently touched asynchronous export with the
// same format, query and args whose progress moved within the window. Failed
// exports never match.
func (r *ExportRepo) FindRecent(ctx context.Context, params core.FindRecentExportParams) (*model.Export, error) {
	if params.Window <= 0 {
		return nil, ErrExportNotFound
	}
	cutoff := r.timeProvider.Now().Add(-params.Window).UTC()
	args := params.Args
	if args == "" {
		args = "{}"
	}

	var export *model.Export
	err := pgxutil.WithConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+exportColumns+`
			FROM exports
			WHERE format = $1
			  AND query_url = $2
			  AND args = $3::jsonb
			  AND progress_updated > $4
			  AND status <> 'failed'
			  AND is_async
			ORDER BY progress_updated DESC
			LIMIT 1
		`, params.Format, params.QueryURL, args, cutoff)
		if err != nil {
			return err
		}
		defer rows.Close()
		export, err = collectExportFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recent export: %w", err)
	}
	return export, nil
}

// UpdateProgress records progress for a running export. Progress never moves
// backwards. Returns ErrExportNotRunning when the export is no longer held.
func (r *ExportRepo) UpdateProgress(ctx context.Context, id string, progress float64) error {
	progress = min(max(progress, 0), 1)
	res, err := r.DB.ExecContext(ctx, `
		UPDATE exports
		SET progress = GREATEST(progress, $2),
		    progress_updated = $3
		WHERE id = $1 AND status = 'running'
	`, id, progress, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update export progress: %w", err)
	}
	return requireRowAffected(res)
}

// Finish publishes the artifact reference and moves the export to finished.
func (r *ExportRepo) Finish(ctx context.Context, id, resultURL string) error {
	if strings.TrimSpace(resultURL) == "" {
		return errors.New("result url is required")
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE exports
		SET status = 'finished',
		    progress = 1,
		    result_url = $2,
		    last_error = NULL,
		    progress_updated = $3
		WHERE id = $1 AND status = 'running'
	`, id, resultURL, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish export: %w", err)
	}
	return requireRowAffected(res)
}

// Fail moves a running export to failed and records why.
func (r *ExportRepo) Fail(ctx context.Context, id, errMsg string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE exports
		SET status = 'failed',
		    last_error = $2,
		    progress_updated = $3
		WHERE id = $1 AND status = 'running'
	`, id, errMsg, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail export: %w", err)
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrExportNotRunning
	}
	return nil
}

// Stats returns export counts per status.
func (r *ExportRepo) Stats(ctx context.Context) (*model.ExportStats, error) {
	var s model.ExportStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'submitted') AS submitted,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'finished')  AS finished,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM exports
  `).Scan(
		&s.Submitted,
		&s.Running,
		&s.Finished,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get export stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification blocks until an export is submitted or ctx ends.
func (r *ExportRepo) WaitForNotification(ctx context.Context) error {
	_, err := pgxutil.WaitForNotification(ctx, r.DB, ExportSubmittedChannel)
	return err
}

// collectExportFromRows collects a single export from pgx rows.
func collectExportFromRows(rows pgx.Rows) (*model.Export, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	export, err := scanExportFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return export, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type exportRowData struct {
	args                 []byte
	resultURL, lastError sql.NullString
}

func (d *exportRowData) scanInto(scanner rowScanner, e *model.Export) error {
	return scanner.Scan(
		&e.ID,
		&e.QueryURL,
		&e.Format,
		&e.Status,
		&e.Progress,
		&d.resultURL,
		&d.args,
		&e.IsAsync,
		&d.lastError,
		&e.Submitted,
		&e.ProgressUpdated,
	)
}

func (d *exportRowData) apply(e *model.Export) {
	e.Args = cloneJSON(d.args)
	e.ResultURL = cloneNullableString(d.resultURL)
	e.LastError = cloneNullableString(d.lastError)
	e.Submitted = e.Submitted.UTC()
	e.ProgressUpdated = e.ProgressUpdated.UTC()
}

func scanExportFromRow(scanner rowScanner) (*model.Export, error) {
	e := &model.Export{}
	var data exportRowData
	if err := data.scanInto(scanner, e); err != nil {
		return nil, err
	}
	data.apply(e)
	return e, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
