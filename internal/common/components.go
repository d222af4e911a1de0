package common

const (
	ComponentIngestPipeline = "ingest-pipeline"
	ComponentEventSource    = "event-source"
	ComponentHistoryStore   = "history-store"
	ComponentCheckpoint     = "checkpoint-store"
	ComponentReconciler     = "reorg-reconciler"
	ComponentQueryEngine    = "query-engine"
	ComponentAPI            = "api"
)

var AllComponents = map[string]struct{}{
	ComponentIngestPipeline: {},
	ComponentEventSource:    {},
	ComponentHistoryStore:   {},
	ComponentCheckpoint:     {},
	ComponentReconciler:     {},
	ComponentQueryEngine:    {},
	ComponentAPI:            {},
}
