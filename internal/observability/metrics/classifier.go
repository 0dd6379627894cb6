// Package metrics provides custom Prometheus metrics for the LeafNet server.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/leafnet-go/internal/errors"
)

// ClassifierMetrics contains all Prometheus metrics related to model slots.
type ClassifierMetrics struct {
	// Performance metrics
	PredictionDuration  *prometheus.HistogramVec
	ModelInvokeDuration *prometheus.HistogramVec
	DecodeDuration      prometheus.Histogram

	// Operation counters
	PredictionTotal  *prometheus.CounterVec
	PredictionErrors *prometheus.CounterVec
	ModelLoadTotal   *prometheus.CounterVec
	ClassPredictions *prometheus.CounterVec

	// Current state
	ModelLoadedGauge *prometheus.GaugeVec
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry prometheus.Registerer) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafnet_prediction_duration_seconds",
			Help:    "Time taken to run a prediction, including waiting for the model",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
		},
		[]string{"slot"},
	)

	m.ModelInvokeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafnet_model_invoke_duration_seconds",
			Help:    "Time taken by the model runtime for one invocation",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"slot"},
	)

	m.DecodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leafnet_image_decode_duration_seconds",
			Help:    "Time taken to turn a request image into a tensor",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 0.1ms to ~400ms
		},
	)

	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_predictions_total",
			Help: "Total number of predictions by outcome",
		},
		[]string{"slot", "status"},
	)

	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_prediction_errors_total",
			Help: "Total number of failed predictions by error kind",
		},
		[]string{"slot", "kind"},
	)

	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"slot", "status"},
	)

	m.ClassPredictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafnet_predicted_class_total",
			Help: "Total number of times each class was the top prediction",
		},
		[]string{"slot", "class"},
	)

	m.ModelLoadedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leafnet_model_loaded",
			Help: "Whether the slot model is loaded (1) or not (0)",
		},
		[]string{"slot", "backend"},
	)
}

// RecordModelLoad records the outcome of loading a slot.
func (m *ClassifierMetrics) RecordModelLoad(slot string, err error) {
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(slot, StatusError).Inc()
		return
	}
	m.ModelLoadTotal.WithLabelValues(slot, StatusSuccess).Inc()
}

// SetModelLoaded marks a slot as loaded or unloaded.
func (m *ClassifierMetrics) SetModelLoaded(slot, backend string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	m.ModelLoadedGauge.WithLabelValues(slot, backend).Set(v)
}

// RecordModelInvoke records the runtime of one model invocation.
func (m *ClassifierMetrics) RecordModelInvoke(slot string, durationSeconds float64) {
	m.ModelInvokeDuration.WithLabelValues(slot).Observe(durationSeconds)
}

// RecordPrediction records metrics for a prediction operation.
func (m *ClassifierMetrics) RecordPrediction(slot string, durationSeconds float64, err error) {
	if err != nil {
		m.PredictionTotal.WithLabelValues(slot, StatusError).Inc()
		m.PredictionErrors.WithLabelValues(slot, categorizeError(err)).Inc()
		return
	}
	m.PredictionTotal.WithLabelValues(slot, StatusSuccess).Inc()
	m.PredictionDuration.WithLabelValues(slot).Observe(durationSeconds)
}

// RecordClass counts a top prediction.
func (m *ClassifierMetrics) RecordClass(slot, class string) {
	m.ClassPredictions.WithLabelValues(slot, class).Inc()
}

// RecordDecode records the time spent decoding a request image.
func (m *ClassifierMetrics) RecordDecode(durationSeconds float64) {
	m.DecodeDuration.Observe(durationSeconds)
}

// categorizeError returns the snake-cased error kind, e.g. "inference_error".
func categorizeError(err error) string {
	return KindLabel(errors.KindOf(err))
}

// KindLabel converts an error kind into a metric label value.
func KindLabel(kind errors.Kind) string {
	if kind == "" {
		return "none"
	}
	return toSnake(string(kind))
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *ClassifierMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PredictionDuration,
		m.ModelInvokeDuration,
		m.DecodeDuration,
		m.PredictionTotal,
		m.PredictionErrors,
		m.ModelLoadTotal,
		m.ClassPredictions,
		m.ModelLoadedGauge,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
