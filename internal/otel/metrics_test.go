package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/timvw/pane-tracker/internal/config"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordPoll(ctx, PollOK, 3)
		m.RecordReconcile(ctx, 1, 2, 3)
		m.RecordIPCConnection(ctx)
		m.RecordIPCError(ctx)
		m.RecordHook(ctx, "recorded")
	})
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, &config.Config{PollDuration: time.Second}, "1.2.3", "tmux")
	require.NoError(t, err)
	defer tel.Close()

	require.NotNil(t, tel.Metrics)
	assert.NotPanics(t, func() { tel.Metrics.RecordPoll(ctx, PollOK, 1) })
	assert.NoError(t, tel.Close())
}

func TestInitRejectsBadEndpoint(t *testing.T) {
	cfg := &config.Config{OTELEndpoint: "localhost:4318", PollDuration: time.Second}
	_, err := Init(context.Background(), cfg, "dev", "tmux")
	assert.Error(t, err)
}

func TestNilTelemetryClose(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Close())
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		want    endpoint
		wantErr bool
	}{
		{raw: "http://localhost:4318", want: endpoint{host: "localhost:4318", insecure: true}},
		{raw: "https://otel.example.com/collector/", want: endpoint{host: "otel.example.com", basePath: "/collector"}},
		{raw: "localhost:4318", wantErr: true},
		{raw: "grpc://localhost:4317", wantErr: true},
		{raw: "http://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseEndpoint(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportIntervalFollowsPoll(t *testing.T) {
	assert.Equal(t, minExportInterval, exportInterval(0))
	assert.Equal(t, minExportInterval, exportInterval(time.Second))
	assert.Equal(t, 25*time.Second, exportInterval(5*time.Second))
	assert.Equal(t, maxExportInterval, exportInterval(time.Minute))
}

func TestTrackerAttributes(t *testing.T) {
	cfg := &config.Config{DataDir: "/home/me/.pane-tracker", PollDuration: 2 * time.Second}
	got := attribute.NewSet(trackerAttributes(cfg, "", "zellij")...)

	v, ok := got.Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "pane-tracker", v.AsString())
	v, _ = got.Value("service.version")
	assert.Equal(t, "dev", v.AsString())
	v, _ = got.Value(attrMultiplexer)
	assert.Equal(t, "zellij", v.AsString())
	v, _ = got.Value(attrDataDir)
	assert.Equal(t, "/home/me/.pane-tracker", v.AsString())
	v, _ = got.Value(attrPollInterval)
	assert.Equal(t, "2s", v.AsString())
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" Authorization=Bearer abc , x-team = infra,broken,=nokey")
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"x-team":        "infra",
	}, got)
	assert.Empty(t, parseHeaders(""))
}
