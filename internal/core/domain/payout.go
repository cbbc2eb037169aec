package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrPayoutNotFound = errors.New("payout not found")

type PayoutStatus int

const (
	// PayoutPending is recorded before the payment exists on the platform.
	PayoutPending PayoutStatus = iota
	PayoutCreated
	PayoutSubmitted
	PayoutCompleted
	PayoutCancelled
	PayoutFailed
)

var payoutStatusNames = map[PayoutStatus]string{
	PayoutPending:   "pending",
	PayoutCreated:   "created",
	PayoutSubmitted: "submitted",
	PayoutCompleted: "completed",
	PayoutCancelled: "cancelled",
	PayoutFailed:    "failed",
}

func (s PayoutStatus) String() string {
	if name, ok := payoutStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s PayoutStatus) IsFinal() bool {
	return s == PayoutCompleted || s == PayoutCancelled || s == PayoutFailed
}

func (s PayoutStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Payout is the record the app keeps for every app-to-user payment, from
// before the payment is created to its completion.
type Payout struct {
	Id        string
	Uid       string
	Amount    float64
	Memo      string
	Metadata  json.RawMessage // product metadata supplied by the caller
	PaymentId string
	Txid      string
	Status    PayoutStatus
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

type PayoutRepository interface {
	Add(ctx context.Context, payout Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	GetByPaymentId(ctx context.Context, paymentId string) (*Payout, error)
	GetAll(ctx context.Context) ([]Payout, error)
	// GetOpen returns the payouts not in a final status.
	GetOpen(ctx context.Context) ([]Payout, error)
	Update(ctx context.Context, payout Payout) error
	Close()
}
