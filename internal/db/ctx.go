package db

import (
	"context"
	"database/sql"

	"github.com/russross/meddler"
)

// ctxDB binds a context to a *sql.DB so meddler queries observe
// cancellation and deadlines.
type ctxDB struct {
	ctx context.Context
	db  *sql.DB
}

var _ meddler.DB = (*ctxDB)(nil)

// WithContext returns a meddler.DB whose operations run with the given
// context applied.
func WithContext(ctx context.Context, database *sql.DB) meddler.DB {
	return &ctxDB{ctx: ctx, db: database}
}

func (c *ctxDB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(c.ctx, query, args...)
}

func (c *ctxDB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(c.ctx, query, args...)
}

func (c *ctxDB) QueryRow(query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(c.ctx, query, args...)
}
