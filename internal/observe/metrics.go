// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics and HTTP middleware that records request timing.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ariavoice/aria"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTTurnGap tracks time from session start to each end-of-turn.
	STTTurnGap metric.Float64Histogram

	// LLMDuration tracks LLM streaming latency per turn (start to last chunk).
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks TTS synthesis latency per turn (open to completion).
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end reply latency per turn.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsCompleted counts reply turns. Use with attribute:
	//   attribute.String("status", "ok"|"error"|"rate_limited")
	TurnsCompleted metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// RateLimitDenials counts turns refused by the LLM quota.
	RateLimitDenials metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("path", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns the process-wide Metrics instance built from the
// global MeterProvider. The first call creates the instruments; later calls
// return the same instance.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on malformed names; fall back to
			// a no-op meter so callers never receive nil.
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// NewMetrics creates all metric instruments against the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.STTTurnGap, err = meter.Float64Histogram(
		"aria.stt.turn_gap.duration",
		metric.WithDescription("Time from session start to each end-of-turn"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.LLMDuration, err = meter.Float64Histogram(
		"aria.llm.duration",
		metric.WithDescription("LLM streaming latency per turn"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.TTSDuration, err = meter.Float64Histogram(
		"aria.tts.duration",
		metric.WithDescription("TTS synthesis latency per turn"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.TurnDuration, err = meter.Float64Histogram(
		"aria.turn.duration",
		metric.WithDescription("End-to-end reply latency per turn"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.TurnsCompleted, err = meter.Int64Counter(
		"aria.turns.completed",
		metric.WithDescription("Reply turns by final status"),
	); err != nil {
		return nil, err
	}
	if m.ProviderRequests, err = meter.Int64Counter(
		"aria.provider.requests",
		metric.WithDescription("Provider API calls"),
	); err != nil {
		return nil, err
	}
	if m.ProviderErrors, err = meter.Int64Counter(
		"aria.provider.errors",
		metric.WithDescription("Provider API errors"),
	); err != nil {
		return nil, err
	}
	if m.RateLimitDenials, err = meter.Int64Counter(
		"aria.ratelimit.denials",
		metric.WithDescription("Turns refused by the LLM quota"),
	); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"aria.sessions.active",
		metric.WithDescription("Live client sessions"),
	); err != nil {
		return nil, err
	}
	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"aria.http.request.duration",
		metric.WithDescription("HTTP request processing time"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTurn increments TurnsCompleted with the given status attribute.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.TurnsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError increments ProviderErrors for the given provider/kind.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}
