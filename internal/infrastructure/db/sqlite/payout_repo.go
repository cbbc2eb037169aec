package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/internal/infrastructure/db/sqlite/sqlc/queries"
)

type payoutRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewPayoutRepository(db *sql.DB) (domain.PayoutRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open payout repository: db is nil")
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &payoutRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *payoutRepository) Add(ctx context.Context, payout domain.Payout) error {
	txBody := func(querierWithTx *queries.Queries) error {
		if err := querierWithTx.InsertPayout(ctx, queries.InsertPayoutParams{
			ID:        payout.Id,
			Uid:       payout.Uid,
			Amount:    payout.Amount,
			Memo:      payout.Memo,
			Metadata:  []byte(payout.Metadata),
			PaymentID: payout.PaymentId,
			Txid:      payout.Txid,
			Status:    int64(payout.Status),
			Error:     payout.Error,
			CreatedAt: payout.CreatedAt,
			UpdatedAt: payout.UpdatedAt,
		}); err != nil {
			if sqlErr, ok := err.(*sqlite.Error); ok {
				if sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
					return fmt.Errorf("payout %s already exists", payout.Id)
				}
			}
			return fmt.Errorf("failed to insert payout: %s", err)
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	row, err := r.querier.GetPayout(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, id)
		}
		return nil, err
	}
	return toPayout(row), nil
}

func (r *payoutRepository) GetByPaymentId(
	ctx context.Context, paymentId string,
) (*domain.Payout, error) {
	row, err := r.querier.GetPayoutByPaymentID(ctx, paymentId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: payment %s", domain.ErrPayoutNotFound, paymentId)
		}
		return nil, err
	}
	return toPayout(row), nil
}

func (r *payoutRepository) GetAll(ctx context.Context) ([]domain.Payout, error) {
	rows, err := r.querier.ListPayouts(ctx)
	if err != nil {
		return nil, err
	}
	return toPayouts(rows), nil
}

func (r *payoutRepository) GetOpen(ctx context.Context) ([]domain.Payout, error) {
	rows, err := r.querier.ListPayoutsByStatus(ctx, []int64{
		int64(domain.PayoutPending), int64(domain.PayoutCreated), int64(domain.PayoutSubmitted),
	})
	if err != nil {
		return nil, err
	}
	return toPayouts(rows), nil
}

func (r *payoutRepository) Update(ctx context.Context, payout domain.Payout) error {
	txBody := func(querierWithTx *queries.Queries) error {
		res, err := querierWithTx.UpdatePayout(ctx, queries.UpdatePayoutParams{
			Uid:       payout.Uid,
			Amount:    payout.Amount,
			Memo:      payout.Memo,
			Metadata:  []byte(payout.Metadata),
			PaymentID: payout.PaymentId,
			Txid:      payout.Txid,
			Status:    int64(payout.Status),
			Error:     payout.Error,
			UpdatedAt: payout.UpdatedAt,
			ID:        payout.Id,
		})
		if err != nil {
			return fmt.Errorf("failed to update payout: %s", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows <= 0 {
			return fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, payout.Id)
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *payoutRepository) Close() {
	// nolint
	r.db.Close()
}

func toPayout(row queries.Payout) *domain.Payout {
	return &domain.Payout{
		Id:        row.ID,
		Uid:       row.Uid,
		Amount:    row.Amount,
		Memo:      row.Memo,
		Metadata:  row.Metadata,
		PaymentId: row.PaymentID,
		Txid:      row.Txid,
		Status:    domain.PayoutStatus(row.Status),
		Error:     row.Error,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toPayouts(rows []queries.Payout) []domain.Payout {
	payouts := make([]domain.Payout, 0, len(rows))
	for _, row := range rows {
		payouts = append(payouts, *toPayout(row))
	}
	return payouts
}
