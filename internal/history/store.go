package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/russross/meddler"

	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// Store is the append-only per-token version history backed by SQLite.
// All writes go through an externally owned transaction so that a ledger
// batch, its window entry and the checkpoint commit atomically.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a history store over an open database.
func NewStore(database *sql.DB, log *logger.Logger) *Store {
	return &Store{db: database, log: log}
}

// AppendTx appends one mapping update to the token's history inside tx.
// The record's sequence number is assigned here as the next dense value
// for the token. Re-applying an event already present at the same
// (token, ledger, event index) position is a no-op and reports false.
func (s *Store) AppendTx(tx *sql.Tx, ev *source.RawEvent) (bool, error) {
	if ev.Kind != source.KindUpdateMapping {
		return false, fmt.Errorf("append: unexpected event kind %q", ev.Kind)
	}

	var exists int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM version_records WHERE token_id = ? AND ledger_seq = ? AND event_index = ?`,
		ev.TokenID, ev.LedgerSeq, ev.EventIndex,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing version record: %w", err)
	}
	if exists > 0 {
		s.log.Debugw("skipping duplicate version record",
			"tokenID", ev.TokenID, "ledgerSeq", ev.LedgerSeq, "eventIndex", ev.EventIndex)
		return false, nil
	}

	var nextSeq uint64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(seq_num), 0) + 1 FROM version_records WHERE token_id = ?`,
		ev.TokenID,
	).Scan(&nextSeq)
	if err != nil {
		return false, fmt.Errorf("failed to compute next sequence number: %w", err)
	}

	rec := &VersionRecord{
		TokenID:    ev.TokenID,
		SeqNum:     nextSeq,
		CID:        ev.CID,
		PrevCID:    ev.PrevCID,
		Updater:    ev.Updater,
		LedgerSeq:  ev.LedgerSeq,
		EventIndex: ev.EventIndex,
		LedgerTime: ev.LedgerTime,
	}
	if err := meddler.Insert(tx, "version_records", rec); err != nil {
		return false, fmt.Errorf("failed to insert version record: %w", err)
	}
	return true, nil
}

// RetractFromTx removes every version record at or above fromLedger.
// Used by reorg reconciliation; the retracted range is always inside the
// finality window, so dense per-token sequence numbers stay gapless after
// the replacement branch is replayed.
func (s *Store) RetractFromTx(tx *sql.Tx, fromLedger uint64) (int64, error) {
	res, err := tx.Exec(`DELETE FROM version_records WHERE ledger_seq >= ?`, fromLedger)
	if err != nil {
		return 0, fmt.Errorf("failed to retract version records from ledger %d: %w", fromLedger, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count retracted version records: %w", err)
	}
	if n > 0 {
		s.log.Infow("retracted version records", "fromLedger", fromLedger, "count", n)
	}
	return n, nil
}

// Latest returns the most recent version record for the token whose ledger
// sequence does not exceed maxLedger. ErrNotFound when the token has no
// visible record.
func (s *Store) Latest(ctx context.Context, tokenID string, maxLedger uint64) (*VersionRecord, error) {
	rec := new(VersionRecord)
	err := meddler.QueryRow(db.WithContext(ctx, s.db), rec,
		`SELECT * FROM version_records
		 WHERE token_id = ? AND ledger_seq <= ?
		 ORDER BY ledger_seq DESC, event_index DESC LIMIT 1`,
		tokenID, maxLedger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest version record: %w", err)
	}
	return rec, nil
}

// History returns the token's version records in ascending sequence order,
// starting strictly after afterSeq and capped at limit rows. Records above
// maxLedger are excluded. ErrNotFound when the token has no visible record
// at all; an empty tail page is returned as an empty slice.
func (s *Store) History(ctx context.Context, tokenID string, afterSeq uint64, limit int, maxLedger uint64) ([]*VersionRecord, error) {
	var recs []*VersionRecord
	err := meddler.QueryAll(db.WithContext(ctx, s.db), &recs,
		`SELECT * FROM version_records
		 WHERE token_id = ? AND seq_num > ? AND ledger_seq <= ?
		 ORDER BY seq_num ASC LIMIT ?`,
		tokenID, afterSeq, maxLedger, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query version history: %w", err)
	}
	if len(recs) == 0 && afterSeq == 0 {
		known, err := s.tokenKnown(ctx, tokenID, maxLedger)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, ErrNotFound
		}
	}
	return recs, nil
}

// AsOfLedger returns the version record that was current as of the given
// ledger sequence, bounded by maxLedger visibility.
func (s *Store) AsOfLedger(ctx context.Context, tokenID string, ledgerSeq, maxLedger uint64) (*VersionRecord, error) {
	if ledgerSeq < maxLedger {
		maxLedger = ledgerSeq
	}
	return s.Latest(ctx, tokenID, maxLedger)
}

// AsOfTimestamp returns the version record that was current at the given
// ledger close time, bounded by maxLedger visibility.
func (s *Store) AsOfTimestamp(ctx context.Context, tokenID string, at time.Time, maxLedger uint64) (*VersionRecord, error) {
	rec := new(VersionRecord)
	err := meddler.QueryRow(db.WithContext(ctx, s.db), rec,
		`SELECT * FROM version_records
		 WHERE token_id = ? AND ledger_ts <= ? AND ledger_seq <= ?
		 ORDER BY ledger_seq DESC, event_index DESC LIMIT 1`,
		tokenID, at.UTC().Format(db.TimeLayout), maxLedger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query as-of version record: %w", err)
	}
	return rec, nil
}

func (s *Store) tokenKnown(ctx context.Context, tokenID string, maxLedger uint64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM version_records WHERE token_id = ? AND ledger_seq <= ?`,
		tokenID, maxLedger).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}
	return n > 0, nil
}
