package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/pi-apps/a2u/internal/core/domain"
)

const (
	payoutDir = "payouts"
)

type payoutRepository struct {
	store *badgerhold.Store
}

func NewPayoutRepository(baseDir string, logger badger.Logger) (domain.PayoutRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, payoutDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open payout store: %s", err)
	}
	return &payoutRepository{store}, nil
}

// Add stores a new Payout in the database
func (r *payoutRepository) Add(ctx context.Context, payout domain.Payout) error {
	if err := r.store.Insert(payout.Id, toPayoutData(payout)); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("payout %s already exists", payout.Id)
		}
		return err
	}
	return nil
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	var data payoutData
	err := r.store.Get(id, &data)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return data.toPayout(), nil
}

func (r *payoutRepository) GetByPaymentId(
	ctx context.Context, paymentId string,
) (*domain.Payout, error) {
	var dataList []payoutData
	if err := r.store.Find(
		&dataList, badgerhold.Where("PaymentId").Eq(paymentId),
	); err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	if len(paymentId) <= 0 || len(dataList) <= 0 {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrPayoutNotFound, paymentId)
	}
	return dataList[0].toPayout(), nil
}

func (r *payoutRepository) GetAll(ctx context.Context) ([]domain.Payout, error) {
	return r.find(nil)
}

func (r *payoutRepository) GetOpen(ctx context.Context) ([]domain.Payout, error) {
	return r.find(badgerhold.Where("Status").In(
		domain.PayoutPending, domain.PayoutCreated, domain.PayoutSubmitted,
	))
}

func (r *payoutRepository) Update(ctx context.Context, payout domain.Payout) error {
	if err := r.store.Update(payout.Id, toPayoutData(payout)); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, payout.Id)
		}
		return fmt.Errorf("failed to update payout: %w", err)
	}
	return nil
}

func (r *payoutRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *payoutRepository) find(query *badgerhold.Query) ([]domain.Payout, error) {
	var dataList []payoutData
	if err := r.store.Find(&dataList, query); err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}

	payouts := make([]domain.Payout, 0, len(dataList))
	for _, data := range dataList {
		payouts = append(payouts, *data.toPayout())
	}
	sort.SliceStable(payouts, func(i, j int) bool {
		return payouts[i].CreatedAt < payouts[j].CreatedAt
	})
	return payouts, nil
}

type payoutData struct {
	Id        string
	Uid       string
	Amount    float64
	Memo      string
	Metadata  []byte
	PaymentId string
	Txid      string
	Status    domain.PayoutStatus
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

func toPayoutData(payout domain.Payout) payoutData {
	return payoutData{
		Id:        payout.Id,
		Uid:       payout.Uid,
		Amount:    payout.Amount,
		Memo:      payout.Memo,
		Metadata:  payout.Metadata,
		PaymentId: payout.PaymentId,
		Txid:      payout.Txid,
		Status:    payout.Status,
		Error:     payout.Error,
		CreatedAt: payout.CreatedAt,
		UpdatedAt: payout.UpdatedAt,
	}
}

func (d payoutData) toPayout() *domain.Payout {
	return &domain.Payout{
		Id:        d.Id,
		Uid:       d.Uid,
		Amount:    d.Amount,
		Memo:      d.Memo,
		Metadata:  d.Metadata,
		PaymentId: d.PaymentId,
		Txid:      d.Txid,
		Status:    d.Status,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
