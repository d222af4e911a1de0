package reorg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/russross/meddler"

	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// Action classifies how an incoming ledger relates to the recorded window.
type Action int

const (
	// ActionExtend means the ledger cleanly extends the recorded chain.
	ActionExtend Action = iota
	// ActionDuplicate means the exact ledger is already committed.
	ActionDuplicate
	// ActionReorg means the recorded chain diverged; committed data at and
	// above Outcome.From must be retracted before this ledger applies.
	ActionReorg
)

func (a Action) String() string {
	switch a {
	case ActionExtend:
		return "extend"
	case ActionDuplicate:
		return "duplicate"
	case ActionReorg:
		return "reorg"
	default:
		return "unknown"
	}
}

// Outcome is the reconciler's verdict for one incoming ledger.
type Outcome struct {
	Action Action
	// From is the first retracted ledger when Action is ActionReorg.
	From uint64
}

// LedgerRef is one entry in the recorded finality window.
type LedgerRef struct {
	Seq        uint64 `meddler:"ledger_seq,pk"`
	Hash       string `meddler:"ledger_hash"`
	ParentHash string `meddler:"parent_hash"`
}

// ConfirmedBoundary returns the highest confirmed ledger given the last
// committed ledger and the finality window size. Zero means nothing is
// confirmed yet.
func ConfirmedBoundary(lastLedger, window uint64) uint64 {
	if lastLedger <= window {
		return 0
	}
	return lastLedger - window
}

// Reconciler compares incoming ledger headers against the recorded finality
// window to detect chain reorganizations. Only the trailing window ledgers
// are kept; anything older is confirmed and immutable.
type Reconciler struct {
	db     *sql.DB
	log    *logger.Logger
	window uint64
}

// NewReconciler creates a reconciler with the given finality window size.
func NewReconciler(database *sql.DB, log *logger.Logger, finalityWindow uint64) *Reconciler {
	return &Reconciler{db: database, log: log, window: finalityWindow}
}

// Window returns the configured finality window size.
func (r *Reconciler) Window() uint64 {
	return r.window
}

// Evaluate decides how the incoming ledger applies against the recorded
// window. It returns a BeyondFinalityError when the divergence point falls
// at or below the confirmed boundary.
func (r *Reconciler) Evaluate(ctx context.Context, batch *source.LedgerBatch, lastCommitted uint64) (Outcome, error) {
	current, err := r.lookup(ctx, batch.Seq)
	if err != nil {
		return Outcome{}, err
	}
	if current != nil && current.Hash == batch.Hash {
		return Outcome{Action: ActionDuplicate}, nil
	}

	boundary := ConfirmedBoundary(lastCommitted, r.window)

	// A non-duplicate ledger at or below the confirmed boundary rewrites
	// history the window can no longer reconcile.
	if batch.Seq <= boundary {
		return Outcome{}, &BeyondFinalityError{From: batch.Seq, Boundary: boundary}
	}

	parent, err := r.lookup(ctx, batch.Seq-1)
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case parent == nil:
		// No recorded parent: either a fresh window or the parent already
		// slid past the confirmed boundary. Nothing to cross-check.
		if current != nil {
			return r.reorgAt(batch.Seq, boundary)
		}
		return Outcome{Action: ActionExtend}, nil
	case parent.Hash == batch.ParentHash:
		if current != nil {
			// Same parent but a different ledger recorded at this height.
			return r.reorgAt(batch.Seq, boundary)
		}
		return Outcome{Action: ActionExtend}, nil
	default:
		// Parent hash mismatch: the divergence starts at or before the
		// parent ledger itself.
		return r.reorgAt(batch.Seq-1, boundary)
	}
}

func (r *Reconciler) reorgAt(from, boundary uint64) (Outcome, error) {
	if from <= boundary {
		return Outcome{}, &BeyondFinalityError{From: from, Boundary: boundary}
	}
	r.log.Warnw("chain reorganization detected", "fromLedger", from, "confirmedBoundary", boundary)
	return Outcome{Action: ActionReorg, From: from}, nil
}

// RecordLedgerTx stores the ledger's header in the window inside tx,
// replacing any retracted entry at the same height.
func (r *Reconciler) RecordLedgerTx(tx *sql.Tx, batch *source.LedgerBatch) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO ledger_window (ledger_seq, ledger_hash, parent_hash) VALUES (?, ?, ?)`,
		batch.Seq, batch.Hash, batch.ParentHash)
	if err != nil {
		return fmt.Errorf("failed to record ledger %d in finality window: %w", batch.Seq, err)
	}
	return nil
}

// DeleteFromTx removes window entries at or above fromLedger, as part of a
// reorg retraction.
func (r *Reconciler) DeleteFromTx(tx *sql.Tx, fromLedger uint64) error {
	_, err := tx.Exec(`DELETE FROM ledger_window WHERE ledger_seq >= ?`, fromLedger)
	if err != nil {
		return fmt.Errorf("failed to delete window entries from ledger %d: %w", fromLedger, err)
	}
	return nil
}

// PruneBelowTx drops window entries that slid below the confirmed boundary.
func (r *Reconciler) PruneBelowTx(tx *sql.Tx, belowLedger uint64) error {
	_, err := tx.Exec(`DELETE FROM ledger_window WHERE ledger_seq < ?`, belowLedger)
	if err != nil {
		return fmt.Errorf("failed to prune window entries below ledger %d: %w", belowLedger, err)
	}
	return nil
}

func (r *Reconciler) lookup(ctx context.Context, seq uint64) (*LedgerRef, error) {
	if seq == 0 {
		return nil, nil
	}
	ref := new(LedgerRef)
	err := meddler.QueryRow(db.WithContext(ctx, r.db), ref,
		`SELECT * FROM ledger_window WHERE ledger_seq = ?`, seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up window entry for ledger %d: %w", seq, err)
	}
	return ref, nil
}
