package db

import (
	"context"
	"testing"
	"time"

	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"

	"github.com/octopus-project/ipcm-indexer/internal/logger"
)

const testTableMigration = `-- +migrate Down
DROP TABLE IF EXISTS stamps;

-- +migrate Up
CREATE TABLE stamps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

type stamp struct {
	ID        int64     `meddler:"id,pk"`
	Label     string    `meddler:"label"`
	CreatedAt time.Time `meddler:"created_at,utctime"`
}

func TestRunMigrationsSplitsUpAndDown(t *testing.T) {
	path := t.TempDir() + "/test_db.db"
	migrations := []Migration{{ID: "001_stamps.sql", SQL: testTableMigration}}

	require.NoError(t, RunMigrations(path, migrations))

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(`INSERT INTO stamps (label, created_at) VALUES ('x', '')`)
	require.NoError(t, err)

	// Running again is a no-op, not an error.
	require.NoError(t, RunMigrationsDB(logger.NewNopLogger(), database, migrations))
}

func TestRunMigrationsMissingSeparator(t *testing.T) {
	path := t.TempDir() + "/test_db.db"
	err := RunMigrations(path, []Migration{{ID: "bad.sql", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "missing '-- +migrate Up' separator")
}

func TestUTCTimeMeddlerRoundTrip(t *testing.T) {
	path := t.TempDir() + "/test_db.db"
	require.NoError(t, RunMigrations(path, []Migration{{ID: "001_stamps.sql", SQL: testTableMigration}}))

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer database.Close()

	local := time.Date(2026, 1, 10, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))
	require.NoError(t, meddler.Insert(database, "stamps", &stamp{Label: "a", CreatedAt: local}))

	var got stamp
	require.NoError(t, meddler.QueryRow(database, &got, `SELECT * FROM stamps WHERE label = 'a'`))

	// Stored and read back normalized to UTC, nanosecond precision kept.
	require.Equal(t, time.UTC, got.CreatedAt.Location())
	require.True(t, got.CreatedAt.Equal(local))
	require.Equal(t, 123456789, got.CreatedAt.Nanosecond())

	// The column itself holds an RFC3339 string, so SQL comparisons by
	// timestamp order work lexicographically.
	var raw string
	require.NoError(t, database.QueryRow(`SELECT created_at FROM stamps WHERE label = 'a'`).Scan(&raw))
	require.Equal(t, "2026-01-10T11:00:00.123456789Z", raw)

	// Whole-second values keep the full fractional width, so they still
	// order correctly against fractional timestamps in the same second.
	whole := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	require.NoError(t, meddler.Insert(database, "stamps", &stamp{Label: "b", CreatedAt: whole}))
	require.NoError(t, database.QueryRow(`SELECT created_at FROM stamps WHERE label = 'b'`).Scan(&raw))
	require.Equal(t, "2026-01-10T11:00:00.000000000Z", raw)
	require.Less(t, raw, whole.Add(500*time.Millisecond).Format(TimeLayout))
}

func TestUTCTimeMeddlerEmptyString(t *testing.T) {
	path := t.TempDir() + "/test_db.db"
	require.NoError(t, RunMigrations(path, []Migration{{ID: "001_stamps.sql", SQL: testTableMigration}}))

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(`INSERT INTO stamps (label, created_at) VALUES ('empty', '')`)
	require.NoError(t, err)

	var got stamp
	require.NoError(t, meddler.QueryRow(database, &got, `SELECT * FROM stamps WHERE label = 'empty'`))
	require.True(t, got.CreatedAt.IsZero())
}

func TestWithContextCancellation(t *testing.T) {
	path := t.TempDir() + "/test_db.db"
	require.NoError(t, RunMigrations(path, []Migration{{ID: "001_stamps.sql", SQL: testTableMigration}}))

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got stamp
	err = meddler.QueryRow(WithContext(ctx, database), &got, `SELECT * FROM stamps LIMIT 1`)
	require.ErrorIs(t, err, context.Canceled)
}
