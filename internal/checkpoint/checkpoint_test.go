package checkpoint

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/db/migrations"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbConfig := config.DatabaseConfig{
		Path: t.TempDir() + "/test_checkpoint.db",
	}
	dbConfig.ApplyDefaults()

	require.NoError(t, migrations.RunMigrations(dbConfig))

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func TestCheckpointFreshDatabase(t *testing.T) {
	database := setupTestDB(t)
	store := NewStore(database, logger.NewNopLogger())

	cp, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, cp.Initialized())
	require.Zero(t, cp.LastLedgerSeq)
	require.Zero(t, cp.LastEventIndex)
}

func TestCheckpointCommitAndLoad(t *testing.T) {
	database := setupTestDB(t)
	store := NewStore(database, logger.NewNopLogger())
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.CommitTx(tx, 105, 3))
	require.NoError(t, tx.Commit())

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, cp.Initialized())
	require.Equal(t, uint64(105), cp.LastLedgerSeq)
	require.Equal(t, uint32(3), cp.LastEventIndex)
	require.False(t, cp.UpdatedAt.IsZero())
}

func TestCheckpointNotAdvancedOnRollback(t *testing.T) {
	database := setupTestDB(t)
	store := NewStore(database, logger.NewNopLogger())
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.CommitTx(tx, 200, 0))
	require.NoError(t, tx.Rollback())

	// A rolled back batch leaves the cursor untouched.
	cp, err := store.Load(ctx)
	require.NoError(t, err)
	require.False(t, cp.Initialized())
}

func TestCheckpointRewindAndReset(t *testing.T) {
	database := setupTestDB(t)
	store := NewStore(database, logger.NewNopLogger())
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.CommitTx(tx, 105, 3))
	require.NoError(t, store.RewindTx(tx, 101))
	require.NoError(t, tx.Commit())

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(101), cp.LastLedgerSeq)
	require.Zero(t, cp.LastEventIndex)

	tx, err = database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.ResetTx(tx, 0))
	require.NoError(t, tx.Commit())

	cp, err = store.Load(ctx)
	require.NoError(t, err)
	require.False(t, cp.Initialized())
}

func TestCheckpointResetToCursor(t *testing.T) {
	database := setupTestDB(t)
	store := NewStore(database, logger.NewNopLogger())
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.CommitTx(tx, 500, 7))
	require.NoError(t, store.ResetTx(tx, 249))
	require.NoError(t, tx.Commit())

	// Resync from ledger 250 parks the cursor at 249 so the next
	// run resumes exactly at 250.
	cp, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, cp.Initialized())
	require.Equal(t, uint64(249), cp.LastLedgerSeq)
	require.Zero(t, cp.LastEventIndex)
}
