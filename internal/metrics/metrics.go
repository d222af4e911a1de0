package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	LastIngestedLedger = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_last_ingested_ledger",
			Help: "The last ledger sequence successfully committed",
		},
	)

	LedgersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_ledgers_processed_total",
			Help: "Total number of ledger batches committed",
		},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_events_ingested_total",
			Help: "Total number of contract events applied, by kind",
		},
		[]string{"kind"},
	)

	ReorgsHandled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_reorgs_handled_total",
			Help: "Total number of chain reorganizations reconciled",
		},
	)

	RetractedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_retracted_records_total",
			Help: "Total number of version records retracted by reorgs",
		},
	)

	PipelineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_pipeline_state",
			Help: "Current ingestion pipeline state (1 for the active state)",
		},
		[]string{"state"},
	)

	BatchCommitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ipcm_indexer_batch_commit_duration_seconds",
			Help:    "Time taken to commit one ledger batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueriesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_queries_total",
			Help: "Total number of queries served, by operation and mode",
		},
		[]string{"operation", "mode"},
	)

	QueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipcm_indexer_query_duration_seconds",
			Help:    "Duration of query engine operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipcm_indexer_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipcm_indexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func LastIngestedLedgerSet(seq uint64) {
	LastIngestedLedger.Set(float64(seq))
}

func EventsIngestedInc(kind string, count int) {
	EventsIngested.WithLabelValues(kind).Add(float64(count))
}

func BatchCommitTimeLog(duration time.Duration) {
	BatchCommitTime.Observe(duration.Seconds())
}

// PipelineStateSet marks one state active and all others inactive.
func PipelineStateSet(active string, all []string) {
	for _, state := range all {
		v := float64(0)
		if state == active {
			v = 1
		}
		PipelineState.WithLabelValues(state).Set(v)
	}
}

func QueryServedInc(operation, mode string) {
	QueriesServed.WithLabelValues(operation, mode).Inc()
}

func QueryTimeLog(operation string, duration time.Duration) {
	QueryTime.WithLabelValues(operation).Observe(duration.Seconds())
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
