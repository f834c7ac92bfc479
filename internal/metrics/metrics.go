// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "policyconv"

// Conversion results.
const (
	ResultOK     = "ok"
	ResultNoText = "no_text"
	ResultNotPDF = "not_pdf"
	ResultError  = "error"
)

// Recorder groups the collectors for one registry. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	conversions  *prometheus.CounterVec
	acquisition  *prometheus.CounterVec
	segmentation *prometheus.CounterVec
	vehicles     prometheus.Histogram
	duration     prometheus.Histogram
	ocrDropped   prometheus.Counter
	httpRequests *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		conversions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Policy conversions by outcome",
		}, []string{"result"}),
		acquisition: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_method_total",
			Help:      "Text acquisition tier that produced the document text",
		}, []string{"method"}),
		segmentation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segmentation_strategy_total",
			Help:      "Vehicle segmentation heuristic that produced the spans",
		}, []string{"strategy"}),
		vehicles: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vehicles_per_document",
			Help:      "Vehicles found per converted policy",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of a full conversion",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ocrDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_dropped_tokens_total",
			Help:      "OCR tokens discarded below the confidence threshold",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status code",
		}, []string{"path", "code"}),
	}
}

func (r *Recorder) Conversion(result string, took time.Duration) {
	if r == nil {
		return
	}
	r.conversions.WithLabelValues(result).Inc()
	r.duration.Observe(took.Seconds())
}

func (r *Recorder) Acquisition(method string, droppedTokens int) {
	if r == nil {
		return
	}
	r.acquisition.WithLabelValues(method).Inc()
	if droppedTokens > 0 {
		r.ocrDropped.Add(float64(droppedTokens))
	}
}

func (r *Recorder) Segmentation(strategy string, vehicles int) {
	if r == nil {
		return
	}
	r.segmentation.WithLabelValues(strategy).Inc()
	r.vehicles.Observe(float64(vehicles))
}

func (r *Recorder) HTTPRequest(path string, code string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(path, code).Inc()
}
