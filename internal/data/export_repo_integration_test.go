package data

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/testutil"
)

func csvRequest(query string) *model.CreateExportRequest {
	return &model.CreateExportRequest{
		QueryURL: "https://api.example.org/works?filter=" + query,
		Format:   model.ExportFormatCSV,
		IsAsync:  true,
	}
}

func TestExportRepo_Integration_Lifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportRepo(db, RepoConfig{TimeProvider: clock})

		req := csvRequest("type:article")
		req.Args = model.ExportArgs{Columns: []string{"display_name"}, Truncate: true}
		created, err := repo.Create(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusSubmitted, created.Status)
		assert.Contains(t, created.ID, "works-csv-")
		assert.Nil(t, created.ResultURL)
		assert.Equal(t, testutil.TestTime(), created.Submitted)

		opts, err := created.Options()
		require.NoError(t, err)
		assert.Equal(t, req.Args, opts)

		claimed, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, created.ID, claimed.ID)
		assert.Equal(t, model.ExportStatusRunning, claimed.Status)

		clock.AddTime(time.Minute)
		require.NoError(t, repo.UpdateProgress(ctx, created.ID, 0.5))
		require.NoError(t, repo.UpdateProgress(ctx, created.ID, 0.25))

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got.Progress, 1e-9, "progress never decreases")
		assert.Equal(t, testutil.TestTime().Add(time.Minute), got.ProgressUpdated)

		require.NoError(t, repo.Finish(ctx, created.ID, "https://formatter.example.org/export/"+created.ID+"/download"))
		got, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusFinished, got.Status)
		assert.InDelta(t, 1.0, got.Progress, 1e-9)
		require.NotNil(t, got.ResultURL)

		require.ErrorIs(t, repo.Fail(ctx, created.ID, "late"), ErrExportNotRunning)
		require.ErrorIs(t, repo.UpdateProgress(ctx, created.ID, 1), ErrExportNotRunning)
	})
}

func TestExportRepo_Integration_GetByIDNotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewExportRepo(db, RepoConfig{})
		_, err := repo.GetByID(context.Background(), "works-csv-missing")
		require.ErrorIs(t, err, ErrExportNotFound)
	})
}

func TestExportRepo_Integration_ClaimOrderAndEmptyQueue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportRepo(db, RepoConfig{TimeProvider: clock})

		var ids []string
		for _, q := range []string{"a", "b", "c"} {
			e, err := repo.Create(ctx, csvRequest(q))
			require.NoError(t, err)
			ids = append(ids, e.ID)
			clock.AddTime(time.Second)
		}

		for _, want := range ids {
			got, err := repo.ClaimNext(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got.ID, "oldest submitted export is claimed first")
		}

		_, err := repo.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoExportsAvailable)
	})
}

func TestExportRepo_Integration_ConcurrentClaimExactlyOnce(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewExportRepo(db, RepoConfig{})

		const exports = 20
		const workers = 8
		for i := range exports {
			_, err := repo.Create(ctx, csvRequest(string(rune('a'+i))))
			require.NoError(t, err)
		}

		var mu sync.Mutex
		seen := map[string]int{}
		fns := make([]func() error, workers)
		for w := range fns {
			fns[w] = func() error {
				for {
					e, err := repo.ClaimNext(ctx)
					if errors.Is(err, model.ErrNoExportsAvailable) {
						return nil
					}
					if err != nil {
						return err
					}
					mu.Lock()
					seen[e.ID]++
					mu.Unlock()
				}
			}
		}
		for _, err := range testutil.RunConcurrent(fns...) {
			require.NoError(t, err)
		}

		assert.Len(t, seen, exports)
		for id, n := range seen {
			assert.Equal(t, 1, n, "export %s claimed more than once", id)
		}

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStats{Running: exports}, *stats)
	})
}

func TestExportRepo_Integration_CreateRunningIsNotClaimable(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewExportRepo(db, RepoConfig{})

		req := csvRequest("sync")
		req.IsAsync = false
		e, err := repo.CreateRunning(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusRunning, e.Status)
		assert.False(t, e.IsAsync)

		_, err = repo.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoExportsAvailable)
	})
}

func TestExportRepo_Integration_FindRecent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportRepo(db, RepoConfig{TimeProvider: clock})

		req := csvRequest("dedupe")
		created, err := repo.Create(ctx, req)
		require.NoError(t, err)

		params := core.FindRecentExportParams{Format: req.Format, QueryURL: req.QueryURL, Window: 15 * time.Minute}

		clock.AddTime(10 * time.Minute)
		found, err := repo.FindRecent(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		_, err = repo.FindRecent(ctx, core.FindRecentExportParams{
			Format: model.ExportFormatRIS, QueryURL: req.QueryURL, Window: 15 * time.Minute,
		})
		require.ErrorIs(t, err, ErrExportNotFound, "format is part of the identity")

		clock.AddTime(10 * time.Minute)
		_, err = repo.FindRecent(ctx, params)
		require.ErrorIs(t, err, ErrExportNotFound, "stale exports are not reused")
	})
}

func TestExportRepo_Integration_FindRecentMatchesArgs(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewExportRepo(db, RepoConfig{})

		req := csvRequest("shaped")
		req.Args = model.ExportArgs{Columns: []string{"authorships"}}
		created, err := repo.Create(ctx, req)
		require.NoError(t, err)

		found, err := repo.FindRecent(ctx, core.FindRecentExportParams{
			Format: req.Format, QueryURL: req.QueryURL, Args: req.Args.Canonical(), Window: time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		other := model.ExportArgs{Columns: []string{"display_name"}, Truncate: true}
		_, err = repo.FindRecent(ctx, core.FindRecentExportParams{
			Format: req.Format, QueryURL: req.QueryURL, Args: other.Canonical(), Window: time.Hour,
		})
		require.ErrorIs(t, err, ErrExportNotFound, "args are part of the identity")

		_, err = repo.FindRecent(ctx, core.FindRecentExportParams{Format: req.Format, QueryURL: req.QueryURL, Window: time.Hour})
		require.ErrorIs(t, err, ErrExportNotFound, "empty args only match exports without options")
	})
}

func TestExportRepo_Integration_FindRecentSkipsFailed(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewExportRepo(db, RepoConfig{})

		req := csvRequest("broken")
		created, err := repo.Create(ctx, req)
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.Fail(ctx, created.ID, "upstream 500"))

		_, err = repo.FindRecent(ctx, core.FindRecentExportParams{Format: req.Format, QueryURL: req.QueryURL, Window: time.Hour})
		require.ErrorIs(t, err, ErrExportNotFound)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "upstream 500", *got.LastError)
		assert.Nil(t, got.ResultURL)
	})
}

func TestExportRepo_Integration_FailStaleRunning(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportRepo(db, RepoConfig{TimeProvider: clock})

		stuck, err := repo.Create(ctx, csvRequest("stuck"))
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)

		clock.AddTime(90 * time.Minute)
		fresh, err := repo.Create(ctx, csvRequest("fresh"))
		require.NoError(t, err)
		_, err = repo.ClaimNext(ctx)
		require.NoError(t, err)

		clock.AddTime(60 * time.Minute)
		n, err := repo.FailStaleRunning(ctx, core.FailStaleParams{MaxAge: 2 * time.Hour, BatchSize: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusFailed, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "timed out", *got.LastError)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusRunning, got.Status)

		// The reaped worker can no longer publish.
		require.ErrorIs(t, repo.Finish(ctx, stuck.ID, "https://x/download"), ErrExportNotRunning)
	})
}

func TestExportRepo_Integration_FailStaleSubmitted(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewExportRepo(db, RepoConfig{TimeProvider: clock})

		old, err := repo.Create(ctx, csvRequest("old"))
		require.NoError(t, err)
		clock.AddTime(25 * time.Hour)

		n, err := repo.FailStaleSubmitted(ctx, core.FailStaleParams{MaxAge: 24 * time.Hour, BatchSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExportStatusFailed, got.Status)

		_, err = repo.FailStaleSubmitted(ctx, core.FailStaleParams{MaxAge: 0, BatchSize: 10})
		require.Error(t, err)
	})
}

func TestExportEmailRepo_Integration_ClaimAfterFinish(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		exports := NewExportRepo(db, RepoConfig{})
		emails := NewExportEmailRepo(db, RepoConfig{})

		e, err := exports.Create(ctx, csvRequest("mail"))
		require.NoError(t, err)
		pending, err := emails.Create(ctx, e.ID, "reader@example.org")
		require.NoError(t, err)
		assert.Nil(t, pending.SendStarted)
		assert.Nil(t, pending.SentAt)

		_, err = emails.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoEmailsAvailable, "unfinished exports are not announced")

		_, err = exports.ClaimNext(ctx)
		require.NoError(t, err)
		resultURL := "https://formatter.example.org/export/" + e.ID + "/download"
		require.NoError(t, exports.Finish(ctx, e.ID, resultURL))

		claimed, err := emails.ClaimNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, pending.ID, claimed.Email.ID)
		assert.Equal(t, e.QueryURL, claimed.QueryURL)
		assert.Equal(t, resultURL, claimed.ResultURL)
		assert.NotNil(t, claimed.Email.SendStarted)

		_, err = emails.ClaimNext(ctx)
		require.ErrorIs(t, err, model.ErrNoEmailsAvailable, "claimed notifications are not handed out twice")

		ok, err := emails.MarkSent(ctx, claimed.Email.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = emails.MarkSent(ctx, claimed.Email.ID)
		require.NoError(t, err)
		assert.False(t, ok, "sent_at is set at most once")
	})
}
