// Package metrics exposes Prometheus counters for marker operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatasetsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anatomap_datasets_added_total",
		Help: "Datasets added to a map",
	}, []string{"map"})
	DatasetsRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anatomap_datasets_removed_total",
		Help: "Datasets removed from a map",
	}, []string{"map"})
	TermsSubstituted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anatomap_terms_substituted_total",
		Help: "Dataset terms replaced by a mapped ancestor",
	}, []string{"map"})
	TermsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anatomap_terms_dropped_total",
		Help: "Dataset terms with no mapped ancestor",
	}, []string{"map"})
	LoadedDatasets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anatomap_loaded_datasets",
		Help: "Datasets currently loaded on a map",
	}, []string{"map"})
	MutationDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anatomap_mutation_duration_ms",
		Help:    "Duration of dataset add/remove/clear in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"map", "op"})
)

func init() {
	prometheus.MustRegister(DatasetsAdded)
	prometheus.MustRegister(DatasetsRemoved)
	prometheus.MustRegister(TermsSubstituted)
	prometheus.MustRegister(TermsDropped)
	prometheus.MustRegister(LoadedDatasets)
	prometheus.MustRegister(MutationDurationMs)
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }
