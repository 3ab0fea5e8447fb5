// Package metrics exposes the ingestion pipeline's operational counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline aggregates the processing-run metrics. One instance is shared by
// every upload run.
type Pipeline struct {
	RowsProcessed      prometheus.Counter
	RecordsCreated     prometheus.Counter
	RowErrors          prometheus.Counter
	UploadsFinished    *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
}

// NewPipeline registers the pipeline metrics on the given registerer.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)
	return &Pipeline{
		RowsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "billsight_rows_processed_total",
			Help: "Source rows read by processing runs.",
		}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "billsight_records_created_total",
			Help: "Billing records created by processing runs.",
		}),
		RowErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "billsight_row_errors_total",
			Help: "Rows rejected with validation or coercion errors.",
		}),
		UploadsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "billsight_uploads_finished_total",
			Help: "Processing runs by terminal status.",
		}, []string{"status"}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "billsight_processing_duration_seconds",
			Help:    "Wall time of one full processing run.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Default registers on the global prometheus registry.
func Default() *Pipeline {
	return NewPipeline(prometheus.DefaultRegisterer)
}

// Handler serves the metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
