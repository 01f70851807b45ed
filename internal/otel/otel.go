// Package otel wires OpenTelemetry for the tracker daemon.
//
// Every poll and every classified pane gets a span, and the counters in
// Metrics track polls, registry writes, IPC and hooks. Both are exported over
// OTLP/HTTP when the config names an endpoint; otherwise instruments are
// no-ops and nothing leaves the process.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/timvw/pane-tracker/internal/config"
)

// TracerName names the tracer used for poll and pane spans.
const TracerName = "pane-tracker"

const (
	minExportInterval = 10 * time.Second
	maxExportInterval = time.Minute
	shutdownTimeout   = 5 * time.Second
)

// Resource attribute keys describing the tracker instance.
const (
	attrMultiplexer  = attribute.Key("pane_tracker.multiplexer")
	attrDataDir      = attribute.Key("pane_tracker.data_dir")
	attrPollInterval = attribute.Key("pane_tracker.poll_interval")
)

// Telemetry owns the providers installed by Init.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Metrics *Metrics
}

// Init installs trace and metric providers for the daemon described by cfg.
// version is the build version and multiplexer the resolved backend name;
// both end up on the exported resource. With no cfg.OTELEndpoint the
// returned Telemetry only carries no-op instruments.
func Init(ctx context.Context, cfg *config.Config, version, multiplexer string) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.OTELEndpoint != "" {
		target, err := parseEndpoint(cfg.OTELEndpoint)
		if err != nil {
			return nil, err
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(trackerAttributes(cfg, version, multiplexer)...),
			resource.WithHost(),
			resource.WithProcessPID(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}

		headers := parseHeaders(cfg.OTELHeaders)
		traceExp, err := otlptracehttp.New(ctx, target.traceOptions(headers)...)
		if err != nil {
			return nil, fmt.Errorf("otel trace exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, target.metricOptions(headers)...)
		if err != nil {
			_ = traceExp.Shutdown(ctx)
			return nil, fmt.Errorf("otel metric exporter: %w", err)
		}

		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(exportInterval(cfg.PollDuration)))),
			sdkmetric.WithResource(res),
		)
		otel.SetTracerProvider(t.tp)
		otel.SetMeterProvider(t.mp)
	}

	metrics, err := NewMetrics()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// Close flushes pending spans and metrics, giving up after a few seconds so
// an unreachable collector cannot hold up daemon exit.
func (t *Telemetry) Close() error {
	if t == nil || (t.tp == nil && t.mp == nil) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func trackerAttributes(cfg *config.Config, version, multiplexer string) []attribute.KeyValue {
	if version == "" {
		version = "dev"
	}
	if multiplexer == "" {
		multiplexer = "unknown"
	}
	return []attribute.KeyValue{
		semconv.ServiceName(TracerName),
		semconv.ServiceVersion(version),
		attrMultiplexer.String(multiplexer),
		attrDataDir.String(cfg.DataDir),
		attrPollInterval.String(cfg.PollDuration.String()),
	}
}

// exportInterval spaces metric exports at five polls, kept within
// [minExportInterval, maxExportInterval].
func exportInterval(poll time.Duration) time.Duration {
	d := 5 * poll
	if d < minExportInterval {
		return minExportInterval
	}
	if d > maxExportInterval {
		return maxExportInterval
	}
	return d
}

// endpoint is an OTLP/HTTP collector base URL split the way the exporters
// want it: host:port separately from the path prefix.
type endpoint struct {
	host     string
	basePath string
	insecure bool
}

func parseEndpoint(raw string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("otel: invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return endpoint{}, fmt.Errorf("otel: endpoint %q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return endpoint{}, fmt.Errorf("otel: endpoint %q has no host", raw)
	}
	return endpoint{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
	}, nil
}

func (e endpoint) traceOptions(headers map[string]string) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(e.host),
		otlptracehttp.WithURLPath(e.basePath + "/v1/traces"),
	}
	if e.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return opts
}

func (e endpoint) metricOptions(headers map[string]string) []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(e.host),
		otlpmetrichttp.WithURLPath(e.basePath + "/v1/metrics"),
	}
	if e.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(headers))
	}
	return opts
}

// parseHeaders reads "key=value,key2=value2". Pairs without a key are
// skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}
