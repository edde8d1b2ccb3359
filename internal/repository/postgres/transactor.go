package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Transactor = (*PgTransactor)(nil)

type PgTransactor struct {
	db  *DB
	log *zap.Logger
}

func NewTransactor(db *DB, log *zap.Logger) *PgTransactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PgTransactor{db: db, log: log.With(zap.String("component", "postgres.tx"))}
}

// WithTx runs fn in a read-committed transaction carried by ctx. A call
// made while ctx already holds a transaction joins it; only the outermost
// call commits. fn's error rolls everything back and is returned as is.
func (t *PgTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	err := pgx.BeginTxFunc(ctx, t.db.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.log.Debug("transaction rolled back", zap.Error(err))
	}
	return err
}

type txKey struct{}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// execQueryer routes statements through the transaction in ctx, if any.
func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.Pool
}
