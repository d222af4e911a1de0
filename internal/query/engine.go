package query

import (
	"context"
	"time"

	"github.com/octopus-project/ipcm-indexer/internal/checkpoint"
	"github.com/octopus-project/ipcm-indexer/internal/history"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/internal/metrics"
	"github.com/octopus-project/ipcm-indexer/internal/reorg"
)

// Mode selects the visibility of records inside the finality window.
type Mode string

const (
	// ModeConfirmed hides records still inside the finality window.
	ModeConfirmed Mode = "confirmed"
	// ModeProvisional includes every committed record, reorg-retractable
	// ones included.
	ModeProvisional Mode = "provisional"
)

// Valid reports whether the mode is one of the two supported values.
func (m Mode) Valid() bool {
	return m == ModeConfirmed || m == ModeProvisional
}

// HistoryPage is one page of a token's version history.
type HistoryPage struct {
	Records []*history.VersionRecord
	// NextAfterSeq is the cursor for the next page, zero when this page is
	// the last one.
	NextAfterSeq uint64
}

// Engine answers read queries over the committed history, applying the
// confirmed/provisional visibility boundary. Reads run concurrently with
// ingestion; SQLite WAL mode keeps them from blocking the writer.
type Engine struct {
	history    *history.Store
	tokens     *history.TokenStore
	checkpoint *checkpoint.Store
	window     uint64
	timeout    time.Duration
	log        *logger.Logger
}

// NewEngine creates a query engine with the given finality window size and
// per-query timeout.
func NewEngine(
	hist *history.Store,
	tokens *history.TokenStore,
	cp *checkpoint.Store,
	finalityWindow uint64,
	timeout time.Duration,
	log *logger.Logger,
) *Engine {
	return &Engine{
		history:    hist,
		tokens:     tokens,
		checkpoint: cp,
		window:     finalityWindow,
		timeout:    timeout,
		log:        log,
	}
}

// visibilityBound resolves the mode into a maximum visible ledger sequence.
// In confirmed mode a boundary of zero means no ledger is confirmed yet, so
// every lookup misses.
func (e *Engine) visibilityBound(ctx context.Context, mode Mode) (uint64, error) {
	if mode == ModeProvisional {
		return history.NoVisibilityBound, nil
	}
	cp, err := e.checkpoint.Load(ctx)
	if err != nil {
		return 0, err
	}
	return reorg.ConfirmedBoundary(cp.LastLedgerSeq, e.window), nil
}

func (e *Engine) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Latest returns the newest visible version record for the token.
func (e *Engine) Latest(ctx context.Context, tokenID string, mode Mode) (*history.VersionRecord, error) {
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	defer e.observe("latest", mode, time.Now())

	bound, err := e.visibilityBound(ctx, mode)
	if err != nil {
		return nil, err
	}
	return e.history.Latest(ctx, tokenID, bound)
}

// History returns one page of the token's version history in ascending
// sequence order, starting strictly after afterSeq.
func (e *Engine) History(ctx context.Context, tokenID string, afterSeq uint64, limit int, mode Mode) (*HistoryPage, error) {
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	defer e.observe("history", mode, time.Now())

	bound, err := e.visibilityBound(ctx, mode)
	if err != nil {
		return nil, err
	}

	// Fetch one extra row to learn whether a next page exists.
	recs, err := e.history.History(ctx, tokenID, afterSeq, limit+1, bound)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Records: recs}
	if len(recs) > limit {
		page.Records = recs[:limit]
		page.NextAfterSeq = page.Records[limit-1].SeqNum
	}
	return page, nil
}

// AsOfLedger returns the version record that was current at the given
// ledger sequence.
func (e *Engine) AsOfLedger(ctx context.Context, tokenID string, ledgerSeq uint64, mode Mode) (*history.VersionRecord, error) {
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	defer e.observe("as_of_ledger", mode, time.Now())

	bound, err := e.visibilityBound(ctx, mode)
	if err != nil {
		return nil, err
	}
	return e.history.AsOfLedger(ctx, tokenID, ledgerSeq, bound)
}

// AsOfTimestamp returns the version record that was current at the given
// ledger close time.
func (e *Engine) AsOfTimestamp(ctx context.Context, tokenID string, at time.Time, mode Mode) (*history.VersionRecord, error) {
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	defer e.observe("as_of_timestamp", mode, time.Now())

	bound, err := e.visibilityBound(ctx, mode)
	if err != nil {
		return nil, err
	}
	return e.history.AsOfTimestamp(ctx, tokenID, at, bound)
}

// Token returns the token's current-state projection: ownership, burn flag
// and the latest visible CID.
func (e *Engine) Token(ctx context.Context, tokenID string, mode Mode) (*history.TokenInfo, error) {
	ctx, cancel := e.queryCtx(ctx)
	defer cancel()
	defer e.observe("token", mode, time.Now())

	bound, err := e.visibilityBound(ctx, mode)
	if err != nil {
		return nil, err
	}
	info, err := e.tokens.TokenInfo(ctx, tokenID, bound)
	if err != nil {
		return nil, err
	}
	if err := e.tokens.LatestCIDFor(ctx, e.history, info, bound); err != nil {
		return nil, err
	}
	return info, nil
}

func (e *Engine) observe(operation string, mode Mode, start time.Time) {
	metrics.QueryServedInc(operation, string(mode))
	metrics.QueryTimeLog(operation, time.Since(start))
}
