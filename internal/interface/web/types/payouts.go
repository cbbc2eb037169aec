package types

import "encoding/json"

type PayoutRequest struct {
	Uid      string          `json:"uid" binding:"required"`
	Amount   float64         `json:"amount" binding:"required,gt=0"`
	Memo     string          `json:"memo" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

type Payout struct {
	Id        string          `json:"id"`
	Uid       string          `json:"uid"`
	Amount    float64         `json:"amount"`
	Memo      string          `json:"memo"`
	Metadata  json.RawMessage `json:"metadata"`
	PaymentId string          `json:"payment_id,omitempty"`
	Txid      string          `json:"txid,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// PayoutError is returned when a payout was recorded but did not complete.
type PayoutError struct {
	Error  string `json:"error"`
	Payout Payout `json:"payout"`
}

type Wallet struct {
	Network      string  `json:"network"`
	Address      string  `json:"address"`
	Balance      float64 `json:"balance"`
	NextRecovery int64   `json:"next_recovery,omitempty"`
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
}
