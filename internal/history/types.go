package history

import (
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned when a token has no visible record for a query.
// It is a normal result, not a failure.
var ErrNotFound = errors.New("not found")

// NoVisibilityBound makes reads include provisional records still inside
// the finality window.
const NoVisibilityBound = uint64(math.MaxInt64)

// VersionRecord is one committed entry in a token's history chain.
// SeqNum is a dense per-token enumeration (1, 2, 3, ...) of the order
// defined by (LedgerSeq, EventIndex); it is only stable once the record
// leaves the finality window.
type VersionRecord struct {
	ID         int64     `meddler:"id,pk" json:"-"`
	TokenID    string    `meddler:"token_id" json:"token_id"`
	SeqNum     uint64    `meddler:"seq_num" json:"sequence_number"`
	CID        string    `meddler:"cid" json:"cid"`
	PrevCID    string    `meddler:"prev_cid" json:"prev_cid,omitempty"`
	Updater    string    `meddler:"updater" json:"updater"`
	LedgerSeq  uint64    `meddler:"ledger_seq" json:"ledger_sequence"`
	EventIndex uint32    `meddler:"event_index" json:"event_index"`
	LedgerTime time.Time `meddler:"ledger_ts,utctime" json:"ledger_timestamp"`
}

// TokenEvent is one NFT lifecycle event (mint, transfer, burn).
type TokenEvent struct {
	ID         int64     `meddler:"id,pk" json:"-"`
	TokenID    string    `meddler:"token_id" json:"token_id"`
	Kind       string    `meddler:"kind" json:"kind"`
	FromAddr   string    `meddler:"from_addr" json:"from,omitempty"`
	ToAddr     string    `meddler:"to_addr" json:"to,omitempty"`
	IPCMKey    string    `meddler:"ipcm_key" json:"ipcm_key,omitempty"`
	LedgerSeq  uint64    `meddler:"ledger_seq" json:"ledger_sequence"`
	EventIndex uint32    `meddler:"event_index" json:"event_index"`
	LedgerTime time.Time `meddler:"ledger_ts,utctime" json:"ledger_timestamp"`
}

// TokenInfo is the current-state projection of a token: ownership from the
// NFT lifecycle events plus the latest CID mapping, as of a visibility bound.
type TokenInfo struct {
	TokenID      string    `json:"token_id"`
	Owner        string    `json:"owner,omitempty"`
	IPCMKey      string    `json:"ipcm_key,omitempty"`
	Burned       bool      `json:"burned"`
	MintedLedger uint64    `json:"minted_ledger,omitempty"`
	MintedAt     time.Time `json:"minted_at,omitzero"`
	LatestCID    string    `json:"latest_cid,omitempty"`
}
