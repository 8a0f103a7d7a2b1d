package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data/pgxutil"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

// ExportEmailRepo persists download-ready notifications.
type ExportEmailRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.ExportEmailRepository = (*ExportEmailRepo)(nil)

// NewExportEmailRepo creates a new ExportEmailRepo.
func NewExportEmailRepo(db *sql.DB, cfg RepoConfig) *ExportEmailRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportEmailRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "export_email_repo"),
	}
}

const exportEmailColumns = `id, export_id, requester_email, requested_at, send_started, sent_at`

// Create records that address wants to hear when exportID finishes.
func (r *ExportEmailRepo) Create(ctx context.Context, exportID, address string) (*model.ExportEmail, error) {
	if strings.TrimSpace(exportID) == "" {
		return nil, ErrExportIDRequired
	}
	if strings.TrimSpace(address) == "" {
		return nil, ErrEmailAddressRequired
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO export_emails (export_id, requester_email, requested_at)
		VALUES ($1, $2, $3)
		RETURNING `+exportEmailColumns,
		exportID, address, r.timeProvider.Now().UTC(),
	)
	email, err := scanExportEmail(row)
	if err != nil {
		return nil, fmt.Errorf("insert export email: %w", err)
	}
	return email, nil
}

// claimEmailSQL marks the oldest pending notification for a finished export
// as being sent. Only the notification row is locked.
const claimEmailSQL = `
  WITH cte AS (
    SELECT m.id
    FROM export_emails m
    JOIN exports e ON e.id = m.export_id
    WHERE e.status = 'finished'
      AND m.send_started IS NULL
    ORDER BY m.requested_at ASC, m.id ASC
    LIMIT 1
    FOR UPDATE OF m SKIP LOCKED
  )
  UPDATE export_emails m
  SET send_started = $1
  FROM cte, exports e
  WHERE m.id = cte.id AND e.id = m.export_id
  RETURNING m.id, m.export_id, m.requester_email, m.requested_at, m.send_started, m.sent_at, e.query_url, e.result_url`

// ClaimNext claims the oldest notification whose export has finished.
// Returns model.ErrNoEmailsAvailable when nothing is ready.
func (r *ExportEmailRepo) ClaimNext(ctx context.Context) (*model.ClaimedEmail, error) {
	var claimed *model.ClaimedEmail
	err := pgxutil.InTx(ctx, r.DB, pgxutil.ReadCommitted, func(tx pgx.Tx) error {
		rows, qerr := tx.Query(ctx, claimEmailSQL, r.timeProvider.Now().UTC())
		if qerr != nil {
			return fmt.Errorf("claim export email: %w", qerr)
		}
		defer rows.Close()

		if !rows.Next() {
			if rerr := rows.Err(); rerr != nil {
				return fmt.Errorf("claim export email: %w", rerr)
			}
			return model.ErrNoEmailsAvailable
		}

		c := &model.ClaimedEmail{}
		var data emailRowData
		var resultURL sql.NullString
		if serr := rows.Scan(append(data.targets(&c.Email), &c.QueryURL, &resultURL)...); serr != nil {
			return fmt.Errorf("scan export email: %w", serr)
		}
		data.apply(&c.Email)
		c.ResultURL = resultURL.String
		claimed = c
		return rows.Err()
	})
	if err != nil {
		if errors.Is(err, model.ErrNoEmailsAvailable) {
			return nil, model.ErrNoEmailsAvailable
		}
		return nil, err
	}
	return claimed, nil
}

// MarkSent stamps sent_at once. Returns false if the notification was never
// claimed or was already sent.
func (r *ExportEmailRepo) MarkSent(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE export_emails
		SET sent_at = $2
		WHERE id = $1
		  AND send_started IS NOT NULL
		  AND sent_at IS NULL
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark export email sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type emailRowData struct {
	sendStarted, sentAt sql.NullTime
}

func (d *emailRowData) targets(e *model.ExportEmail) []any {
	return []any{&e.ID, &e.ExportID, &e.RequesterEmail, &e.RequestedAt, &d.sendStarted, &d.sentAt}
}

func (d *emailRowData) apply(e *model.ExportEmail) {
	e.RequestedAt = e.RequestedAt.UTC()
	e.SendStarted = cloneNullableTime(d.sendStarted)
	e.SentAt = cloneNullableTime(d.sentAt)
}

func scanExportEmail(scanner rowScanner) (*model.ExportEmail, error) {
	e := &model.ExportEmail{}
	var data emailRowData
	if err := scanner.Scan(data.targets(e)...); err != nil {
		return nil, err
	}
	data.apply(e)
	return e, nil
}
