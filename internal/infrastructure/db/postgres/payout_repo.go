package pgdb

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/pi-apps/a2u/internal/core/domain"
)

type payoutModel struct {
	Id        string  `gorm:"primaryKey"`
	Uid       string  `gorm:"not null"`
	Amount    float64 `gorm:"not null"`
	Memo      string  `gorm:"not null"`
	Metadata  []byte
	PaymentId string `gorm:"index;not null;default:''"`
	Txid      string `gorm:"not null;default:''"`
	Status    int    `gorm:"index;not null"`
	Error     string `gorm:"not null;default:''"`
	CreatedAt int64  `gorm:"autoCreateTime:false"`
	UpdatedAt int64  `gorm:"autoUpdateTime:false"`
}

func (payoutModel) TableName() string {
	return "payouts"
}

type payoutRepository struct {
	db *gorm.DB
}

// OpenDb connects to the postgres database at dsn and migrates the schema.
func OpenDb(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func NewPayoutRepository(db *gorm.DB) (domain.PayoutRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot open payout repository: db is nil")
	}
	if err := db.AutoMigrate(&payoutModel{}); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &payoutRepository{db}, nil
}

func (r *payoutRepository) Add(ctx context.Context, payout domain.Payout) error {
	model := toPayoutModel(payout)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("payout %s already exists", payout.Id)
		}
		return fmt.Errorf("failed to insert payout: %w", err)
	}
	return nil
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	var model payoutModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, id)
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return model.toPayout(), nil
}

func (r *payoutRepository) GetByPaymentId(
	ctx context.Context, paymentId string,
) (*domain.Payout, error) {
	if len(paymentId) <= 0 {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrPayoutNotFound, paymentId)
	}
	var model payoutModel
	if err := r.db.WithContext(ctx).
		First(&model, "payment_id = ?", paymentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %s", domain.ErrPayoutNotFound, paymentId)
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return model.toPayout(), nil
}

func (r *payoutRepository) GetAll(ctx context.Context) ([]domain.Payout, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *payoutRepository) GetOpen(ctx context.Context) ([]domain.Payout, error) {
	return r.find(r.db.WithContext(ctx).Where("status IN ?", []int{
		int(domain.PayoutPending), int(domain.PayoutCreated), int(domain.PayoutSubmitted),
	}))
}

func (r *payoutRepository) Update(ctx context.Context, payout domain.Payout) error {
	model := toPayoutModel(payout)
	res := r.db.WithContext(ctx).Model(&payoutModel{}).
		Where("id = ?", payout.Id).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if res.Error != nil {
		return fmt.Errorf("failed to update payout: %w", res.Error)
	}
	if res.RowsAffected <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, payout.Id)
	}
	return nil
}

func (r *payoutRepository) Close() {
	if sqlDb, err := r.db.DB(); err == nil {
		// nolint
		sqlDb.Close()
	}
}

func (r *payoutRepository) find(query *gorm.DB) ([]domain.Payout, error) {
	var models []payoutModel
	if err := query.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}}).
		Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to get payouts: %w", err)
	}
	payouts := make([]domain.Payout, 0, len(models))
	for _, m := range models {
		payouts = append(payouts, *m.toPayout())
	}
	return payouts, nil
}

func toPayoutModel(payout domain.Payout) payoutModel {
	return payoutModel{
		Id:        payout.Id,
		Uid:       payout.Uid,
		Amount:    payout.Amount,
		Memo:      payout.Memo,
		Metadata:  payout.Metadata,
		PaymentId: payout.PaymentId,
		Txid:      payout.Txid,
		Status:    int(payout.Status),
		Error:     payout.Error,
		CreatedAt: payout.CreatedAt,
		UpdatedAt: payout.UpdatedAt,
	}
}

func (m payoutModel) toPayout() *domain.Payout {
	return &domain.Payout{
		Id:        m.Id,
		Uid:       m.Uid,
		Amount:    m.Amount,
		Memo:      m.Memo,
		Metadata:  m.Metadata,
		PaymentId: m.PaymentId,
		Txid:      m.Txid,
		Status:    domain.PayoutStatus(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
