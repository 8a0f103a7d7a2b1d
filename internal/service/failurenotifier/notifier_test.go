package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	received []notify.ExportFailurePayload
}

func (c *captureSink) SendExportFailure(_ context.Context, payload notify.ExportFailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func TestServiceNotifyExportFailure(t *testing.T) {
	first, second := &captureSink{}, &captureSink{}
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "first", Sink: first},
			{Sink: second},
			{Name: "nil sink"},
		},
	})
	require.True(t, svc.Enabled())

	svc.NotifyExportFailure(context.Background(), notify.ExportFailurePayload{
		ExportID: "works-csv-abc",
		Format:   "csv",
		IsAsync:  true,
	})

	require.Len(t, first.received, 1)
	require.Len(t, second.received, 1)
	assert.Equal(t, notify.SeverityCritical, first.received[0].Severity)
	assert.Equal(t, "works-csv-abc", second.received[0].ExportID)
}

func TestServiceDisabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
}

func TestServiceLogsErrors(t *testing.T) {
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "fail",
				Sink: notify.SinkFunc(func(context.Context, notify.ExportFailurePayload) error {
					return errors.New("boom")
				}),
			},
		},
	})

	assert.NotPanics(t, func() {
		svc.NotifyExportFailure(context.Background(), notify.ExportFailurePayload{ExportID: "works-csv-abc", IsAsync: true})
	})
}

func TestServiceSkipsSyncExports(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "capture", Sink: sink}}})

	svc.NotifyExportFailure(context.Background(), notify.ExportFailurePayload{
		ExportID: "works-ris-sync",
		IsAsync:  false,
	})

	assert.Empty(t, sink.received)
}

func TestServiceNamesAnonymousSinks(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "slack", Sink: &captureSink{}}, {Sink: &captureSink{}}}})

	require.Len(t, svc.sinks, 2)
	assert.Equal(t, "slack", svc.sinks[0].Name)
	assert.Equal(t, "sink-1", svc.sinks[1].Name)
}
