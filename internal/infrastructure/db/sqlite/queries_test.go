package sqlitedb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pi-apps/a2u/internal/infrastructure/db/sqlite/sqlc/queries"
)

func TestQueries(t *testing.T) {
	db, err := OpenDb("")
	require.NoError(t, err)
	t.Cleanup(func() {
		// nolint
		db.Close()
	})
	require.NoError(t, migrate(db))

	ctx := context.Background()
	querier := queries.New(db)

	for _, p := range []queries.InsertPayoutParams{
		{ID: "order-2", Uid: "U2", Amount: 2, Memo: "m", Status: 1, CreatedAt: 20, UpdatedAt: 20},
		{ID: "order-1", Uid: "U1", Amount: 1, Memo: "m", PaymentID: "P1", Status: 0, CreatedAt: 10, UpdatedAt: 10},
		{ID: "order-3", Uid: "U3", Amount: 3, Memo: "m", Status: 4, CreatedAt: 10, UpdatedAt: 10},
	} {
		require.NoError(t, execTx(ctx, db, func(querierWithTx *queries.Queries) error {
			return querierWithTx.InsertPayout(ctx, p)
		}))
	}

	t.Run("list by status", func(t *testing.T) {
		rows, err := querier.ListPayoutsByStatus(ctx, []int64{0, 1})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, "order-1", rows[0].ID)
		require.Equal(t, "order-2", rows[1].ID)

		rows, err = querier.ListPayoutsByStatus(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("list orders by creation then id", func(t *testing.T) {
		rows, err := querier.ListPayouts(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, []string{"order-1", "order-3", "order-2"}, []string{
			rows[0].ID, rows[1].ID, rows[2].ID,
		})
	})

	t.Run("get by payment id ignores unset ids", func(t *testing.T) {
		row, err := querier.GetPayoutByPaymentID(ctx, "P1")
		require.NoError(t, err)
		require.Equal(t, "order-1", row.ID)

		_, err = querier.GetPayoutByPaymentID(ctx, "")
		require.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("update", func(t *testing.T) {
		res, err := querier.UpdatePayout(ctx, queries.UpdatePayoutParams{
			ID: "order-2", Uid: "U2", Amount: 2, Memo: "m", Txid: "T2", Status: 3, UpdatedAt: 30,
		})
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		row, err := querier.GetPayout(ctx, "order-2")
		require.NoError(t, err)
		require.Equal(t, "T2", row.Txid)
		require.Equal(t, int64(30), row.UpdatedAt)

		res, err = querier.UpdatePayout(ctx, queries.UpdatePayoutParams{ID: "missing"})
		require.NoError(t, err)
		n, err = res.RowsAffected()
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("rollback", func(t *testing.T) {
		err := execTx(ctx, db, func(querierWithTx *queries.Queries) error {
			if err := querierWithTx.InsertPayout(ctx, queries.InsertPayoutParams{
				ID: "order-4", Uid: "U4", Amount: 4, Memo: "m", CreatedAt: 40, UpdatedAt: 40,
			}); err != nil {
				return err
			}
			return querierWithTx.InsertPayout(ctx, queries.InsertPayoutParams{
				ID: "order-1", Uid: "U1", Amount: 1, Memo: "m", CreatedAt: 40, UpdatedAt: 40,
			})
		})
		require.Error(t, err)

		_, err = querier.GetPayout(ctx, "order-4")
		require.ErrorIs(t, err, sql.ErrNoRows)
	})
}
