// Package source defines the boundary to the chain event source: a lazy,
// restartable, pull-based stream of per-ledger contract event batches.
package source

import (
	"context"
	"time"
)

// EventKind identifies the contract event a RawEvent was decoded from.
type EventKind string

const (
	// KindUpdateMapping is an IPCM contract CID mapping update.
	KindUpdateMapping EventKind = "update_mapping"

	// KindMint, KindTransfer and KindBurn are NFT contract lifecycle events.
	KindMint     EventKind = "mint"
	KindTransfer EventKind = "transfer"
	KindBurn     EventKind = "burn"
)

// RawEvent is one observed contract event, positioned by
// (LedgerSeq, EventIndex) which is its canonical identity.
type RawEvent struct {
	Kind       EventKind
	TokenID    string
	CID        string
	PrevCID    string
	Updater    string
	From       string
	To         string
	IPCMKey    string
	LedgerSeq  uint64
	EventIndex uint32
	LedgerTime time.Time
}

// LedgerBatch carries all subscribed events of a single closed ledger
// together with the hash linkage needed for reorg detection.
type LedgerBatch struct {
	Seq        uint64
	Hash       string
	ParentHash string
	ClosedAt   time.Time
	Events     []RawEvent
}

// Client is the chain RPC boundary.
type Client interface {
	// LatestLedger returns the sequence of the most recent closed ledger.
	LatestLedger(ctx context.Context) (uint64, error)

	// Subscribe opens a pull-based subscription starting at fromLedger.
	// Ledger sequences are non-decreasing within a session; duplicates are
	// possible across reconnects.
	Subscribe(ctx context.Context, fromLedger uint64) (Subscription, error)
}

// Subscription yields ledger batches one at a time. Next blocks until a
// batch is available, the context is cancelled, or the source fails.
type Subscription interface {
	Next(ctx context.Context) (*LedgerBatch, error)
	Close() error
}
