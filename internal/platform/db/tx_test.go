package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed bool
	rollbacks int
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rollbacks++
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
	err  error
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	tx := &fakeTx{}
	pool := &fakeBeginner{tx: tx}

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.True(t, tx.committed)
	require.Zero(t, tx.rollbacks)
	require.Equal(t, pgx.RepeatableRead, pool.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	pool := &fakeBeginner{tx: tx}
	boom := errors.New("boom")

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, tx.committed)
	require.Equal(t, 1, tx.rollbacks)
}

// A panic in the callback must still release the transaction, otherwise its
// row locks outlive the request once the HTTP recoverer swallows the panic.
func TestWithTxRollsBackOnPanic(t *testing.T) {
	tx := &fakeTx{}
	pool := &fakeBeginner{tx: tx}

	require.Panics(t, func() {
		_ = WithTx(context.Background(), pool, func(pgx.Tx) error { panic("boom") })
	})
	require.False(t, tx.committed)
	require.Equal(t, 1, tx.rollbacks)
}

func TestWithTxBeginFailure(t *testing.T) {
	pool := &fakeBeginner{err: errors.New("no connections")}

	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return nil })
	require.Error(t, err)
}
