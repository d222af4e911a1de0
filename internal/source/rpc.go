package source

import (
	"encoding/json"
	"time"
)

// JSON-RPC 2.0 framing.

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Method payloads, matching the soroban-rpc wire shapes.

type paginationParams struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  uint64 `json:"limit,omitempty"`
}

type latestLedgerResult struct {
	Sequence uint64 `json:"sequence"`
}

type getLedgersParams struct {
	StartLedger uint64           `json:"startLedger"`
	Pagination  paginationParams `json:"pagination,omitzero"`
}

type ledgerInfo struct {
	Sequence   uint64    `json:"sequence"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parentHash"`
	ClosedAt   time.Time `json:"closedAt"`
}

type getLedgersResult struct {
	Ledgers      []ledgerInfo `json:"ledgers"`
	LatestLedger uint64       `json:"latestLedger"`
	Cursor       string       `json:"cursor,omitempty"`
}

type eventFilter struct {
	Type        string   `json:"type"`
	ContractIDs []string `json:"contractIds"`
}

type getEventsParams struct {
	StartLedger uint64           `json:"startLedger,omitempty"`
	EndLedger   uint64           `json:"endLedger,omitempty"`
	Filters     []eventFilter    `json:"filters"`
	Pagination  paginationParams `json:"pagination,omitzero"`
}

type eventInfo struct {
	Ledger         uint64          `json:"ledger"`
	EventIndex     uint32          `json:"eventIndex"`
	ContractID     string          `json:"contractId"`
	LedgerClosedAt time.Time       `json:"ledgerClosedAt"`
	Topic          []string        `json:"topic"`
	Value          json.RawMessage `json:"value"`
}

type getEventsResult struct {
	Events       []eventInfo `json:"events"`
	LatestLedger uint64      `json:"latestLedger"`
	Cursor       string      `json:"cursor,omitempty"`
}
