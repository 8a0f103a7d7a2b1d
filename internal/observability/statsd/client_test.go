package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"formatter", "export/finished", "formatter.export_finished"},
		{"", " page fetched ", "page_fetched"},
		{"formatter", "reaper..cleanup.", "formatter.reaper.cleanup"},
		{"formatter", "  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), tt.name)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " formatter "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:formatter", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     ".formatter.",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	defer client.Close()
	require.True(t, client.Enabled())

	read := func() string {
		t.Helper()
		buf := make([]byte, 512)
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, rerr := pc.ReadFrom(buf)
		require.NoError(t, rerr)
		return string(buf[:n])
	}

	client.Count("export.transition", 1, map[string]string{"format": "csv"})
	assert.Equal(t, "formatter.export.transition:1|c|#env:test,format:csv", read())

	client.Gauge("paginator.per_page", 100, nil)
	assert.Equal(t, "formatter.paginator.per_page:100|g|#env:test", read())

	client.Timing("export.duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "formatter.export.duration:1.5|ms|#env:test", read())
}

func TestClientDisabledAndClose(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	client.Count("dropped", 1, nil)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	nilClient.Count("dropped", 1, nil)
	require.NoError(t, nilClient.Close())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
