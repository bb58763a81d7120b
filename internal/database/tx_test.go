package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

func TestPgxRunnerCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	runner := NewPgxRunner(mock)
	err = runner.WithinTx(context.Background(), func(ctx context.Context) error {
		tx, ok := TxFromContext(ctx)
		require.True(t, ok)
		_, err := Conn(ctx, mock).Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(1))
		assert.Equal(t, tx, Conn(ctx, mock))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxRunnerRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = NewPgxRunner(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxRunnerRetriesSerializationFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectRollback()
	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit()

	calls := 0
	err = NewPgxRunner(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: serializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxRunnerNestedJoinsOuter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(serializable)
	mock.ExpectCommit()

	runner := NewPgxRunner(mock)
	err = runner.WithinTx(context.Background(), func(ctx context.Context) error {
		return runner.WithinTx(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnOutsideTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	assert.Equal(t, Querier(mock), Conn(context.Background(), mock))
}

func TestLocalRunnerSerializesAndNests(t *testing.T) {
	runner := NewLocalRunner()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.WithinTx(context.Background(), func(ctx context.Context) error {
				return runner.WithinTx(ctx, func(context.Context) error {
					counter++
					return nil
				})
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
