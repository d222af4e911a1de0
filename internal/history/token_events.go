package history

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

// TokenStore records NFT lifecycle events (mint, transfer, burn) alongside
// the mapping history, and projects them into a current token state.
type TokenStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewTokenStore creates a token event store over an open database.
func NewTokenStore(database *sql.DB, log *logger.Logger) *TokenStore {
	return &TokenStore{db: database, log: log}
}

// RecordTx stores one lifecycle event inside tx. Duplicate positions are
// skipped, mirroring Store.AppendTx.
func (s *TokenStore) RecordTx(tx *sql.Tx, ev *source.RawEvent) (bool, error) {
	rec := &TokenEvent{
		TokenID:    ev.TokenID,
		LedgerSeq:  ev.LedgerSeq,
		EventIndex: ev.EventIndex,
		LedgerTime: ev.LedgerTime,
	}
	switch ev.Kind {
	case source.KindMint:
		rec.Kind = string(source.KindMint)
		rec.ToAddr = ev.To
		rec.IPCMKey = ev.IPCMKey
	case source.KindTransfer:
		rec.Kind = string(source.KindTransfer)
		rec.FromAddr = ev.From
		rec.ToAddr = ev.To
	case source.KindBurn:
		rec.Kind = string(source.KindBurn)
		rec.FromAddr = ev.From
	default:
		return false, fmt.Errorf("record: unexpected event kind %q", ev.Kind)
	}

	var exists int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM token_events WHERE token_id = ? AND ledger_seq = ? AND event_index = ?`,
		ev.TokenID, ev.LedgerSeq, ev.EventIndex,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing token event: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	if err := meddler.Insert(tx, "token_events", rec); err != nil {
		return false, fmt.Errorf("failed to insert token event: %w", err)
	}
	return true, nil
}

// RetractFromTx removes every lifecycle event at or above fromLedger.
func (s *TokenStore) RetractFromTx(tx *sql.Tx, fromLedger uint64) (int64, error) {
	res, err := tx.Exec(`DELETE FROM token_events WHERE ledger_seq >= ?`, fromLedger)
	if err != nil {
		return 0, fmt.Errorf("failed to retract token events from ledger %d: %w", fromLedger, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count retracted token events: %w", err)
	}
	return n, nil
}

// TokenInfo projects the lifecycle events visible up to maxLedger into the
// token's current state. ErrNotFound when the token was never minted and
// has no mapping history either.
func (s *TokenStore) TokenInfo(ctx context.Context, tokenID string, maxLedger uint64) (*TokenInfo, error) {
	var events []*TokenEvent
	err := meddler.QueryAll(db.WithContext(ctx, s.db), &events,
		`SELECT * FROM token_events
		 WHERE token_id = ? AND ledger_seq <= ?
		 ORDER BY ledger_seq ASC, event_index ASC`,
		tokenID, maxLedger)
	if err != nil {
		return nil, fmt.Errorf("failed to query token events: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}

	info := &TokenInfo{TokenID: tokenID}
	for _, ev := range events {
		switch ev.Kind {
		case string(source.KindMint):
			info.Owner = ev.ToAddr
			info.IPCMKey = ev.IPCMKey
			info.MintedLedger = ev.LedgerSeq
			info.MintedAt = ev.LedgerTime
			info.Burned = false
		case string(source.KindTransfer):
			info.Owner = ev.ToAddr
		case string(source.KindBurn):
			info.Burned = true
			info.Owner = ""
		}
	}
	return info, nil
}

// LatestCIDFor attaches the latest visible mapping to the projection, if
// one exists.
func (s *TokenStore) LatestCIDFor(ctx context.Context, hs *Store, info *TokenInfo, maxLedger uint64) error {
	rec, err := hs.Latest(ctx, info.TokenID, maxLedger)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	info.LatestCID = rec.CID
	return nil
}
