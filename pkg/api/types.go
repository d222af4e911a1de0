package api

import (
	"time"

	"github.com/octopus-project/ipcm-indexer/internal/history"
)

// HistoryResponse is one page of a token's version history.
type HistoryResponse struct {
	TokenID    string                   `json:"token_id"`
	Records    []*history.VersionRecord `json:"records"`
	Pagination PaginationResult         `json:"pagination"`
}

// PaginationResult contains cursor pagination metadata.
type PaginationResult struct {
	Limit        int    `json:"limit"`
	HasMore      bool   `json:"has_more"`
	NextAfterSeq uint64 `json:"next_after_seq,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Pipeline  PipelineStatus `json:"pipeline"`
}

// PipelineStatus reports the ingestion pipeline's state and progress.
type PipelineStatus struct {
	State      string `json:"state"`
	LastLedger uint64 `json:"last_ledger"`
}
