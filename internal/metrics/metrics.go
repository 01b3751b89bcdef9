// Package metrics exports run statistics in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the run collectors on a private registry.
type Recorder struct {
	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	items    *prometheus.GaugeVec
	quality  *prometheus.GaugeVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedwatch",
			Name:      "runs_total",
			Help:      "Source runs by strategy and outcome status.",
		}, []string{"strategy", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedwatch",
			Name:      "run_duration_seconds",
			Help:      "Time spent collecting a source.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedwatch",
			Name:      "source_items",
			Help:      "Items produced by the latest run of a source.",
		}, []string{"source_id"}),
		quality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feedwatch",
			Name:      "source_quality_score",
			Help:      "Quality score of the latest run of a source.",
		}, []string{"source_id"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.runs, r.duration, r.items, r.quality,
	)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(sourceID int64, strategy, status string, seconds float64, items, score int) {
	r.runs.WithLabelValues(strategy, status).Inc()
	r.duration.WithLabelValues(strategy).Observe(seconds)
	id := strconv.FormatInt(sourceID, 10)
	r.items.WithLabelValues(id).Set(float64(items))
	r.quality.WithLabelValues(id).Set(float64(score))
}

// Forget drops the per-source series of a deleted source.
func (r *Recorder) Forget(sourceID int64) {
	id := strconv.FormatInt(sourceID, 10)
	r.items.DeleteLabelValues(id)
	r.quality.DeleteLabelValues(id)
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
