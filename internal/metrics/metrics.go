package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the result grid server.
type Metrics struct {
	ProfilesComputed *prometheus.CounterVec
	ProfileCache     *prometheus.CounterVec
	RowsFiltered     *prometheus.CounterVec
	ResultSetsStored prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	profilesComputed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultgrid_profiles_computed_total",
		Help: "Column profiles computed, by column type",
	}, []string{"column_type"})

	profileCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultgrid_profile_cache_requests_total",
		Help: "Profile cache lookups by outcome",
	}, []string{"outcome"})

	rowsFiltered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resultgrid_view_rows_total",
		Help: "Rows evaluated by table views, split into kept and dropped",
	}, []string{"result"})

	resultSetsStored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resultgrid_result_sets_imported_total",
		Help: "Result sets imported into the cache",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resultgrid_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	reg.MustRegister(profilesComputed, profileCache, rowsFiltered, resultSetsStored, requestDuration)

	return &Metrics{
		ProfilesComputed: profilesComputed,
		ProfileCache:     profileCache,
		RowsFiltered:     rowsFiltered,
		ResultSetsStored: resultSetsStored,
		RequestDuration:  requestDuration,
	}
}
