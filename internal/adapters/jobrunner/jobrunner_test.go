package jobrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/mocks"
)

type processorFunc func(ctx context.Context, exp *model.Export) error

func (f processorFunc) Process(ctx context.Context, exp *model.Export) error { return f(ctx, exp) }

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func TestNewRunner_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)

	_, err := NewRunner(RunnerOptions{Processor: processorFunc(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExportRepository is required")

	_, err = NewRunner(RunnerOptions{Repo: mocks.NewMockExportRepository(ctrl)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor is required")

	r, err := NewRunner(RunnerOptions{Repo: mocks.NewMockExportRepository(ctrl), Processor: processorFunc(nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, time.Second, r.pollInterval)
}

func TestRunner_ProcessesClaimedExports(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &model.Export{ID: "works-csv-1", Format: model.ExportFormatCSV}
	second := &model.Export{ID: "works-ris-2", Format: model.ExportFormatRIS}
	repo.EXPECT().ClaimNext(gomock.Any()).Return(first, nil)
	repo.EXPECT().ClaimNext(gomock.Any()).Return(second, nil)
	repo.EXPECT().ClaimNext(gomock.Any()).Return(nil, model.ErrNoExportsAvailable).AnyTimes()
	repo.EXPECT().WaitForNotification(gomock.Any()).DoAndReturn(blockUntilDone).AnyTimes()

	var (
		mu        sync.Mutex
		processed []string
	)
	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Processor: processorFunc(func(_ context.Context, exp *model.Export) error {
			mu.Lock()
			defer mu.Unlock()
			processed = append(processed, exp.ID)
			if len(processed) == 2 {
				cancel()
			}
			return errors.New("pipeline failures are logged, not fatal")
		}),
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case err := <-runAsync(ctx, r):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"works-csv-1", "works-ris-2"}, processed)
}

func TestRunner_ClaimErrorBacksOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.EXPECT().ClaimNext(gomock.Any()).Return(nil, errors.New("connection reset by peer"))
	repo.EXPECT().ClaimNext(gomock.Any()).Return(&model.Export{ID: "works-zip-1"}, nil)
	repo.EXPECT().ClaimNext(gomock.Any()).DoAndReturn(func(ctx context.Context) (*model.Export, error) {
		return nil, blockUntilDone(ctx)
	}).AnyTimes()

	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Processor: processorFunc(func(context.Context, *model.Export) error {
			cancel()
			return nil
		}),
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case err := <-runAsync(ctx, r):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not recover from the claim error")
	}
}

func TestRunner_PanicFailsExport(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockExportRepository(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.EXPECT().ClaimNext(gomock.Any()).Return(&model.Export{ID: "works-csv-boom"}, nil)
	repo.EXPECT().ClaimNext(gomock.Any()).Return(nil, model.ErrNoExportsAvailable).AnyTimes()
	repo.EXPECT().WaitForNotification(gomock.Any()).DoAndReturn(blockUntilDone).AnyTimes()
	repo.EXPECT().Fail(gomock.Any(), "works-csv-boom", "internal error").DoAndReturn(
		func(context.Context, string, string) error {
			cancel()
			return nil
		})

	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Processor: processorFunc(func(context.Context, *model.Export) error {
			panic("nil map write")
		}),
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case err := <-runAsync(ctx, r):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
