package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/export/encode"
	"github.com/ourresearch/openalex-formatter/internal/mocks"
	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

const testResultBase = "https://export.example.org"

func newTestProcessor(t *testing.T, repo *mocks.MockExportRepository, blobs *memBlobStore, fetcher upstream.Fetcher, sink *recordingSink) *ExportProcessor {
	t.Helper()
	opts := ExportProcessorOptions{
		Repo:          repo,
		Blobs:         blobs,
		Fetcher:       fetcher,
		Encoders:      encode.NewRegistry(encode.RegistryOptions{}),
		ResultBaseURL: testResultBase + "/",
		Paginator:     upstream.PaginatorConfig{PerPage: 2, MinPerPage: 1, MaxConsecutiveFailures: 2},
		TempDir:       t.TempDir(),
	}
	if sink != nil {
		opts.Metrics = sink
	}
	p, err := NewExportProcessor(opts)
	require.NoError(t, err)
	return p
}

func runningExport(id string, format model.ExportFormat) *model.Export {
	return &model.Export{
		ID:       id,
		QueryURL: "https://api.example.org/works?filter=publication_year:2020",
		Format:   format,
		Status:   model.ExportStatusRunning,
		IsAsync:  true,
	}
}

func TestNewExportProcessor_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)

	_, err := NewExportProcessor(ExportProcessorOptions{Repo: repo, Blobs: newMemBlobStore(), Fetcher: newPagedFetcher(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder Registry is required")

	_, err = NewExportProcessor(ExportProcessorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExportRepository is required")
}

func TestExportProcessor_Process_CSV(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	blobs := newMemBlobStore()
	sink := &recordingSink{}
	exp := runningExport("works-csv-abc", model.ExportFormatCSV)

	var progress []float64
	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, v float64) error {
			progress = append(progress, v)
			return nil
		}).Times(2)
	repo.EXPECT().Finish(gomock.Any(), exp.ID, testResultBase+"/export/works-csv-abc/download").Return(nil)

	p := newTestProcessor(t, repo, blobs, newPagedFetcher(3), sink)
	require.NoError(t, p.Process(context.Background(), exp))

	assert.Equal(t, []float64{0.5, 1}, progress)

	body, ok := blobs.object("works-csv-abc.csv")
	require.True(t, ok, "artifact uploaded under its object key")
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "id,display_name,"), text)
	assert.Equal(t, 4, strings.Count(text, "\n"), "header plus three rows")
	for _, name := range []string{"Work 1", "Work 2", "Work 3"} {
		assert.Contains(t, text, name)
	}
	assert.Equal(t, encode.ContentTypeCSV, blobs.types["works-csv-abc.csv"])

	tags := sink.lastTags("export.transition")
	require.NotNil(t, tags)
	assert.Equal(t, "finish", tags["transition"])
	assert.Equal(t, "success", tags["result"])
}

func TestExportProcessor_Process_UpstreamFailureFailsExport(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	exp := runningExport("works-csv-bad", model.ExportFormatCSV)
	fetcher := newPagedFetcher(3)
	fetcher.err = &upstream.StatusError{StatusCode: 503}

	var reason string
	repo.EXPECT().Fail(gomock.Any(), exp.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg string) error {
			reason = msg
			return nil
		})

	p := newTestProcessor(t, repo, newMemBlobStore(), fetcher, nil)
	err := p.Process(context.Background(), exp)
	require.ErrorIs(t, err, upstream.ErrTooManyFailures)
	assert.Contains(t, reason, "too many consecutive upstream failures")
	assert.Equal(t, 2, fetcher.calls)
}

func TestExportProcessor_Process_UploadFailureFailsExport(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	blobs := newMemBlobStore()
	blobs.putErr = errors.New("access denied")
	exp := runningExport("works-ris-1", model.ExportFormatRIS)

	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, gomock.Any()).Return(nil).AnyTimes()
	repo.EXPECT().Fail(gomock.Any(), exp.ID, gomock.Any()).Return(nil)

	p := newTestProcessor(t, repo, blobs, newPagedFetcher(1), nil)
	err := p.Process(context.Background(), exp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload works-ris-1.ris")
}

type capturedFailures struct {
	payloads []notify.ExportFailurePayload
}

func (c *capturedFailures) NotifyExportFailure(_ context.Context, payload notify.ExportFailurePayload) {
	c.payloads = append(c.payloads, payload)
}

func TestExportProcessor_Process_FailureAlertsOperators(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	blobs := newMemBlobStore()
	blobs.putErr = errors.New("access denied")
	exp := runningExport("works-csv-alert", model.ExportFormatCSV)

	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, gomock.Any()).Return(nil).AnyTimes()
	repo.EXPECT().Fail(gomock.Any(), exp.ID, gomock.Any()).Return(nil)

	failures := &capturedFailures{}
	p, err := NewExportProcessor(ExportProcessorOptions{
		Repo:      repo,
		Blobs:     blobs,
		Fetcher:   newPagedFetcher(1),
		Encoders:  encode.NewRegistry(encode.RegistryOptions{}),
		Paginator: upstream.PaginatorConfig{PerPage: 2, MinPerPage: 1, MaxConsecutiveFailures: 2},
		TempDir:   t.TempDir(),
		Failures:  failures,
	})
	require.NoError(t, err)

	require.Error(t, p.Process(context.Background(), exp))
	require.Len(t, failures.payloads, 1)
	got := failures.payloads[0]
	assert.Equal(t, "works-csv-alert", got.ExportID)
	assert.Equal(t, "csv", got.Format)
	assert.True(t, got.IsAsync)
	assert.Contains(t, got.Error, "access denied")
	assert.NotEmpty(t, got.ErrorClass)
}

func TestExportProcessor_Process_ReapedExportIsNotFailedAgain(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	exp := runningExport("works-csv-reaped", model.ExportFormatCSV)

	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, gomock.Any()).Return(nil).AnyTimes()
	repo.EXPECT().Finish(gomock.Any(), exp.ID, gomock.Any()).Return(data.ErrExportNotRunning)
	// No Fail expectation: a reaped export must not be touched again.

	p := newTestProcessor(t, repo, newMemBlobStore(), newPagedFetcher(2), nil)
	err := p.Process(context.Background(), exp)
	require.ErrorIs(t, err, data.ErrExportNotRunning)
}

func TestExportProcessor_Process_CancelLeavesExportRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	blobs := newMemBlobStore()
	blobs.putErr = context.Canceled
	exp := runningExport("works-csv-shutdown", model.ExportFormatCSV)

	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, gomock.Any()).Return(nil).AnyTimes()
	// No Fail expectation: the stale-running sweep owns interrupted exports.

	failures := &capturedFailures{}
	p, err := NewExportProcessor(ExportProcessorOptions{
		Repo:      repo,
		Blobs:     blobs,
		Fetcher:   newPagedFetcher(1),
		Encoders:  encode.NewRegistry(encode.RegistryOptions{}),
		Paginator: upstream.PaginatorConfig{PerPage: 2, MinPerPage: 1, MaxConsecutiveFailures: 2},
		TempDir:   t.TempDir(),
		Failures:  failures,
	})
	require.NoError(t, err)

	err = p.Process(context.Background(), exp)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, failures.payloads)
}

func TestExportProcessor_Process_RejectsExportNotRunning(t *testing.T) {
	for _, status := range []model.ExportStatus{model.ExportStatusSubmitted, model.ExportStatusFinished, model.ExportStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockExportRepository(ctrl)
			exp := runningExport("works-csv-"+string(status), model.ExportFormatCSV)
			exp.Status = status

			fetcher := newPagedFetcher(1)
			p := newTestProcessor(t, repo, newMemBlobStore(), fetcher, nil)
			err := p.Process(context.Background(), exp)
			require.ErrorIs(t, err, data.ErrExportNotRunning)
			assert.Zero(t, fetcher.calls)
		})
	}
}

func TestExportProcessor_RunSync_FirstPageOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	blobs := newMemBlobStore()
	exp := runningExport("works-csv-sync", model.ExportFormatCSV)
	exp.IsAsync = false

	repo.EXPECT().UpdateProgress(gomock.Any(), exp.ID, float64(1)).Return(nil)
	repo.EXPECT().Finish(gomock.Any(), exp.ID, gomock.Any()).Return(nil)

	fetcher := newPagedFetcher(3)
	p := newTestProcessor(t, repo, blobs, fetcher, nil)
	body, contentType, err := p.RunSync(context.Background(), exp)
	require.NoError(t, err)

	assert.Equal(t, encode.ContentTypeCSV, contentType)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 3, strings.Count(string(body), "\n"), "header plus the first page")
	assert.NotContains(t, string(body), "Work 3")

	stored, ok := blobs.object(exp.ObjectKey())
	require.True(t, ok)
	assert.Equal(t, body, stored)
}

func TestExportProcessor_URLs(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newTestProcessor(t, mocks.NewMockExportRepository(ctrl), newMemBlobStore(), newPagedFetcher(0), nil)

	assert.Equal(t, testResultBase+"/export/works-zip-1/download", p.ResultURL("works-zip-1"))
	assert.Equal(t, testResultBase+"/export/works-zip-1", ProgressURL(testResultBase+"/", "works-zip-1"))
	assert.True(t, p.Supports(model.ExportFormatZip))
	assert.False(t, p.Supports(model.ExportFormatMegaCSV))
	assert.Equal(t, "application/octet-stream", p.ContentType(model.ExportFormatMegaCSV))
}

func TestTruncateMessage(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, truncateMessage(short))

	long := strings.Repeat("é", maxErrorMessageChars)
	got := truncateMessage(long)
	assert.LessOrEqual(t, len(got), maxErrorMessageChars)
	assert.True(t, strings.HasPrefix(long, got))
}
