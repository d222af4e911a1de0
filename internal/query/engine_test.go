package query

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/octopus-project/ipcm-indexer/internal/checkpoint"
	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/db/migrations"
	"github.com/octopus-project/ipcm-indexer/internal/history"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// setupEngine seeds a database with token-1 history (Qm111 at ledger 100,
// Qm222 at 105), a mint at 100 and a checkpoint at 105, then builds an
// engine with a finality window of 8. The confirmed boundary is 97, so both
// records are provisional.
func setupEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()

	dbConfig := config.DatabaseConfig{
		Path: t.TempDir() + "/test_query.db",
	}
	dbConfig.ApplyDefaults()
	require.NoError(t, migrations.RunMigrations(dbConfig))

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := logger.NewNopLogger()
	hist := history.NewStore(database, log)
	tokens := history.NewTokenStore(database, log)
	cp := checkpoint.NewStore(database, log)

	tx, err := database.Begin()
	require.NoError(t, err)

	_, err = tokens.RecordTx(tx, &source.RawEvent{
		Kind: source.KindMint, TokenID: "token-1", To: "GALICE", IPCMKey: "ipcm-1",
		LedgerSeq: 100, EventIndex: 0, LedgerTime: baseTime,
	})
	require.NoError(t, err)
	_, err = hist.AppendTx(tx, &source.RawEvent{
		Kind: source.KindUpdateMapping, TokenID: "token-1", CID: "Qm111", Updater: "GALICE",
		LedgerSeq: 100, EventIndex: 1, LedgerTime: baseTime,
	})
	require.NoError(t, err)
	_, err = hist.AppendTx(tx, &source.RawEvent{
		Kind: source.KindUpdateMapping, TokenID: "token-1", CID: "Qm222", Updater: "GALICE",
		LedgerSeq: 105, EventIndex: 0, LedgerTime: baseTime.Add(25 * time.Second),
	})
	require.NoError(t, err)
	require.NoError(t, cp.CommitTx(tx, 105, 0))
	require.NoError(t, tx.Commit())

	engine := NewEngine(hist, tokens, cp, 8, time.Second, log)
	return engine, database
}

func advanceCheckpoint(t *testing.T, database *sql.DB, seq uint64) {
	t.Helper()
	cp := checkpoint.NewStore(database, logger.NewNopLogger())
	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, cp.CommitTx(tx, seq, 0))
	require.NoError(t, tx.Commit())
}

func TestEngineLatestModes(t *testing.T) {
	engine, database := setupEngine(t)
	ctx := context.Background()

	// Provisional mode sees the newest record immediately.
	rec, err := engine.Latest(ctx, "token-1", ModeProvisional)
	require.NoError(t, err)
	require.Equal(t, "Qm222", rec.CID)

	// Confirmed mode sees nothing while both records sit in the window.
	_, err = engine.Latest(ctx, "token-1", ModeConfirmed)
	require.ErrorIs(t, err, history.ErrNotFound)

	// Once the chain advances past 100+window, Qm111 confirms.
	advanceCheckpoint(t, database, 110)
	rec, err = engine.Latest(ctx, "token-1", ModeConfirmed)
	require.NoError(t, err)
	require.Equal(t, "Qm111", rec.CID)

	// And past 105+window, Qm222 confirms too.
	advanceCheckpoint(t, database, 113)
	rec, err = engine.Latest(ctx, "token-1", ModeConfirmed)
	require.NoError(t, err)
	require.Equal(t, "Qm222", rec.CID)
}

func TestEngineLatestUnknownToken(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.Latest(context.Background(), "no-such-token", ModeProvisional)
	require.ErrorIs(t, err, history.ErrNotFound)
}

func TestEngineHistoryPagination(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	page, err := engine.History(ctx, "token-1", 0, 1, ModeProvisional)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "Qm111", page.Records[0].CID)
	require.Equal(t, uint64(1), page.NextAfterSeq)

	page, err = engine.History(ctx, "token-1", page.NextAfterSeq, 1, ModeProvisional)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "Qm222", page.Records[0].CID)
	require.Zero(t, page.NextAfterSeq)
}

func TestEngineAsOf(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	rec, err := engine.AsOfLedger(ctx, "token-1", 103, ModeProvisional)
	require.NoError(t, err)
	require.Equal(t, "Qm111", rec.CID)

	rec, err = engine.AsOfTimestamp(ctx, "token-1", baseTime.Add(time.Minute), ModeProvisional)
	require.NoError(t, err)
	require.Equal(t, "Qm222", rec.CID)

	// As-of in confirmed mode is still bounded by the confirmed boundary.
	_, err = engine.AsOfLedger(ctx, "token-1", 103, ModeConfirmed)
	require.ErrorIs(t, err, history.ErrNotFound)
}

func TestEngineToken(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	info, err := engine.Token(ctx, "token-1", ModeProvisional)
	require.NoError(t, err)
	require.Equal(t, "GALICE", info.Owner)
	require.Equal(t, "Qm222", info.LatestCID)
	require.False(t, info.Burned)

	_, err = engine.Token(ctx, "token-1", ModeConfirmed)
	require.ErrorIs(t, err, history.ErrNotFound)
}

func TestModeValid(t *testing.T) {
	require.True(t, ModeConfirmed.Valid())
	require.True(t, ModeProvisional.Valid())
	require.False(t, Mode("latest").Valid())
}
