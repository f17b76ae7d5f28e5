package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a read committed transaction, committing when fn returns
// nil and rolling back otherwise. Errors from fn keep their identity.
func WithTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	if err := pgx.BeginTxFunc(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn); err != nil {
		return fmt.Errorf("platform/db: tx: %w", err)
	}
	return nil
}
