// Package observe records service metrics through the OpenTelemetry metrics
// API and exposes them for Prometheus scraping.
//
// Tests should build a Metrics with NewMetrics and a ManualReader-backed
// provider instead of the global one.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nikhilbhutani/accentcoach/internal/multimodal/stt"
)

const meterName = "github.com/nikhilbhutani/accentcoach"

// Metrics holds the instruments. All methods are safe for concurrent use.
type Metrics struct {
	// RecognitionDuration is per candidate locale, with locale and outcome attributes.
	RecognitionDuration metric.Float64Histogram
	Recognitions        metric.Int64Counter

	// DetectionDuration covers a whole detection, with a fallback attribute.
	DetectionDuration metric.Float64Histogram
	Detections        metric.Int64Counter

	Translations metric.Int64Counter
	// Pronunciation counts transcription and assessment requests by kind and outcome.
	Pronunciation metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. Recognition calls are capped at a few
// seconds each, so the upper buckets stay coarse.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 20,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("accentcoach.recognition.duration",
		metric.WithDescription("Latency of one speech recognition call for a candidate locale."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter("accentcoach.recognition.outcomes",
		metric.WithDescription("Recognition outcomes by locale and kind."),
	); err != nil {
		return nil, err
	}
	if met.DetectionDuration, err = m.Float64Histogram("accentcoach.detection.duration",
		metric.WithDescription("Latency of a complete accent detection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("accentcoach.detection.total",
		metric.WithDescription("Completed accent detections, split by prior fallback."),
	); err != nil {
		return nil, err
	}
	if met.Translations, err = m.Int64Counter("accentcoach.translation.total",
		metric.WithDescription("Translation requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Pronunciation, err = m.Int64Counter("accentcoach.pronunciation.total",
		metric.WithDescription("Transcription and pronunciation assessment requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("accentcoach.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordRecognition(ctx context.Context, locale string, kind stt.Kind, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("locale", locale),
		attribute.String("outcome", kind.String()),
	)
	m.Recognitions.Add(ctx, 1, attrs)
	if kind == stt.KindRecognized {
		m.RecognitionDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *Metrics) RecordDetection(ctx context.Context, fallback bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("fallback", fallback))
	m.Detections.Add(ctx, 1, attrs)
	m.DetectionDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTranslation counts one translation request; outcome is e.g.
// "translated", "cached", "skipped" or "error".
func (m *Metrics) RecordTranslation(ctx context.Context, outcome string) {
	m.Translations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPronunciation counts one request; kind is "transcribe" or "assess".
func (m *Metrics) RecordPronunciation(ctx context.Context, kind, outcome string) {
	m.Pronunciation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordHTTP records one served request. route is the matched route pattern,
// not the raw path.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
