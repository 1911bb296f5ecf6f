// Package observe provides application-wide observability primitives for
// lexidrill: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired via [InitProvider] so that metrics can be scraped via the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lexidrill metrics.
const meterName = "github.com/lexidrill/lexidrill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation. A nil *Metrics is valid and records nothing, so
// components can treat metrics as strictly optional.
type Metrics struct {
	// VerifyDuration tracks the latency of one spoken-answer verification,
	// from capture activation to verdict.
	VerifyDuration metric.Float64Histogram

	// AnswersScored counts scored answers. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("result", "correct"|"wrong")
	AnswersScored metric.Int64Counter

	// Verdicts counts verifier outcomes by verdict name, including the
	// unscored ones (none, mismatch).
	Verdicts metric.Int64Counter

	// ItemsMastered counts newly-mastered items.
	ItemsMastered metric.Int64Counter

	// SessionsCompleted counts sessions that ran to completion, by mode.
	SessionsCompleted metric.Int64Counter

	// SnapshotRestores counts session starts by source. Use with attribute:
	//   attribute.String("source", "snapshot"|"fresh"|"discarded")
	SnapshotRestores metric.Int64Counter

	// ActiveSessions tracks the number of live drill sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveCaptures tracks the number of live audio capture pipelines.
	ActiveCaptures metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// utterance-scale latencies: sub-second partials up to the 30 s capture cap.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VerifyDuration, err = m.Float64Histogram("lexidrill.verify.duration",
		metric.WithDescription("Latency of one spoken-answer verification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AnswersScored, err = m.Int64Counter("lexidrill.answers.scored",
		metric.WithDescription("Total scored answers by mode and result."),
	); err != nil {
		return nil, err
	}
	if met.Verdicts, err = m.Int64Counter("lexidrill.verify.verdicts",
		metric.WithDescription("Total verifier outcomes by verdict."),
	); err != nil {
		return nil, err
	}
	if met.ItemsMastered, err = m.Int64Counter("lexidrill.items.mastered",
		metric.WithDescription("Total items newly mastered."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("lexidrill.sessions.completed",
		metric.WithDescription("Total sessions run to completion by mode."),
	); err != nil {
		return nil, err
	}
	if met.SnapshotRestores, err = m.Int64Counter("lexidrill.sessions.started",
		metric.WithDescription("Total session starts by queue source."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("lexidrill.active_sessions",
		metric.WithDescription("Number of live drill sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("lexidrill.active_captures",
		metric.WithDescription("Number of live audio capture pipelines."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAnswer records one scored answer. Safe on a nil receiver.
func (m *Metrics) RecordAnswer(ctx context.Context, mode string, correct bool) {
	if m == nil {
		return
	}
	result := "wrong"
	if correct {
		result = "correct"
	}
	m.AnswersScored.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("result", result),
		),
	)
}

// RecordVerdict records one verifier outcome. Safe on a nil receiver.
func (m *Metrics) RecordVerdict(ctx context.Context, verdict string) {
	if m == nil {
		return
	}
	m.Verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordVerifyDuration records the latency of one verification attempt.
// Safe on a nil receiver.
func (m *Metrics) RecordVerifyDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.VerifyDuration.Record(ctx, d.Seconds())
}

// RecordMastered records newly-mastered items. Safe on a nil receiver.
func (m *Metrics) RecordMastered(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.ItemsMastered.Add(ctx, n)
}

// RecordSessionCompleted records one completed session. Safe on a nil
// receiver.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.SessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordSessionStarted records one session start and how its queue was
// built: "snapshot" (restored), "fresh", or "discarded" (snapshot existed
// but failed to decode). Safe on a nil receiver.
func (m *Metrics) RecordSessionStarted(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.SnapshotRestores.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// AddActiveSessions moves the live-session gauge by delta. Safe on a nil
// receiver.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// AddActiveCaptures moves the live-capture gauge by delta. Safe on a nil
// receiver.
func (m *Metrics) AddActiveCaptures(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveCaptures.Add(ctx, delta)
}
