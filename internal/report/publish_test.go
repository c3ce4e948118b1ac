package report

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/ledger"
)

type fakeTx struct {
	pgx.Tx
	execs      []string
	table      pgx.Identifier
	columns    []string
	copied     [][]any
	copyErr    error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.table, f.columns = table, columns
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, values)
	}
	return int64(len(f.copied)), src.Err()
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeDB struct{ tx *fakeTx }

func (f fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) { return f.tx, nil }

func unifiedFixture() []ledger.Unified {
	return []ledger.Unified{
		{Type: ledger.KindAccrual, Classification: "FARMA", Buyer: "ANA", Supplier: "ACME", Branch: 1,
			Status: aging.Overdue, DaysOverdue: 10, PendingAmount: decimal.RequireFromString("100.50")},
		{Type: ledger.KindReturn, Classification: "HB", Buyer: "BRUNO", Supplier: "BETA", Branch: 2,
			Status: aging.NotYetDue, PendingAmount: decimal.RequireFromString("40")},
	}
}

func TestPublisherReplacesSnapshot(t *testing.T) {
	tx := &fakeTx{}
	pub, err := NewPublisher(fakeDB{tx: tx}, quietLogger()).Publish(context.Background(), unifiedFixture(), asOf)
	require.NoError(t, err)

	require.Equal(t, int64(2), pub.Rows)
	require.Equal(t, "2025-03-15", pub.AsOf)
	requireDecimal(t, "140.50", pub.Total)
	require.True(t, tx.committed)

	require.Len(t, tx.execs, 2)
	require.Contains(t, tx.execs[0], "CREATE TABLE IF NOT EXISTS report_unified_ledger")
	require.Equal(t, "DELETE FROM report_unified_ledger", tx.execs[1])
	require.Equal(t, pgx.Identifier{"report_unified_ledger"}, tx.table)
	require.Equal(t, unifiedCopyColumns, tx.columns)

	first := tx.copied[0]
	require.Len(t, first, len(unifiedCopyColumns))
	require.Equal(t, pgtype.UUID{Bytes: pub.RunID, Valid: true}, first[0])
	require.Equal(t, "ACCRUAL", first[2])
	require.Equal(t, int32(10), first[8])
	amount := first[10].(pgtype.Numeric)
	require.Equal(t, "10050", amount.Int.String())
	require.Equal(t, int32(-2), amount.Exp)
}

func TestPublisherRollsBackOnCopyFailure(t *testing.T) {
	tx := &fakeTx{copyErr: errors.New("connection reset")}
	_, err := NewPublisher(fakeDB{tx: tx}, quietLogger()).Publish(context.Background(), unifiedFixture(), asOf)
	require.ErrorContains(t, err, "connection reset")
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}
