package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/octopus-project/ipcm-indexer/internal/logger"
)

// Checkpoint is the durable ingestion cursor. LastLedgerSeq is the highest
// ledger whose events are fully committed; LastEventIndex is the index of
// the last event applied within it.
type Checkpoint struct {
	LastLedgerSeq  uint64    `json:"last_ledger_seq"`
	LastEventIndex uint32    `json:"last_event_index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Initialized reports whether any ledger has ever been committed. Ledger
// sequences start at 1, so a zero cursor means a fresh database.
func (c *Checkpoint) Initialized() bool {
	return c.LastLedgerSeq > 0
}

// Store persists the single-row ingestion checkpoint. Commits happen inside
// the same transaction that writes the ledger's history records, so the
// cursor can never point past data that is not durable.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore creates a checkpoint store over an open database. The checkpoint
// row is seeded by the schema migration.
func NewStore(database *sql.DB, log *logger.Logger) *Store {
	return &Store{db: database, log: log}
}

// Load reads the current checkpoint.
func (s *Store) Load(ctx context.Context) (*Checkpoint, error) {
	cp := new(Checkpoint)
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_ledger_seq, last_event_index, updated_at FROM ingestion_checkpoint WHERE id = 1`,
	).Scan(&cp.LastLedgerSeq, &cp.LastEventIndex, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestion checkpoint: %w", err)
	}
	if updatedAt != "" {
		cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint timestamp: %w", err)
		}
	}
	return cp, nil
}

// CommitTx advances the checkpoint inside the caller's transaction.
func (s *Store) CommitTx(tx *sql.Tx, ledgerSeq uint64, eventIndex uint32) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := tx.Exec(
		`UPDATE ingestion_checkpoint SET last_ledger_seq = ?, last_event_index = ?, updated_at = ? WHERE id = 1`,
		ledgerSeq, eventIndex, now)
	if err != nil {
		return fmt.Errorf("failed to commit checkpoint at ledger %d: %w", ledgerSeq, err)
	}
	return nil
}

// RewindTx moves the checkpoint back to the given ledger during reorg
// reconciliation, within the caller's transaction.
func (s *Store) RewindTx(tx *sql.Tx, ledgerSeq uint64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := tx.Exec(
		`UPDATE ingestion_checkpoint SET last_ledger_seq = ?, last_event_index = 0, updated_at = ? WHERE id = 1`,
		ledgerSeq, now)
	if err != nil {
		return fmt.Errorf("failed to rewind checkpoint to ledger %d: %w", ledgerSeq, err)
	}
	return nil
}

// ResetTx rewrites the checkpoint cursor inside the caller's transaction.
// A zero cursor makes the next run start from the configured start ledger;
// a non-zero cursor makes it start at cursor+1. Used by the resync command,
// never during normal operation.
func (s *Store) ResetTx(tx *sql.Tx, cursor uint64) error {
	_, err := tx.Exec(
		`UPDATE ingestion_checkpoint SET last_ledger_seq = ?, last_event_index = 0, updated_at = '' WHERE id = 1`,
		cursor)
	if err != nil {
		return fmt.Errorf("failed to reset ingestion checkpoint: %w", err)
	}
	s.log.Infow("ingestion checkpoint reset", "cursor", cursor)
	return nil
}
