package pi

import (
	"encoding/json"
	"fmt"
)

const (
	DirectionUserToApp Direction = "user_to_app"
	DirectionAppToUser Direction = "app_to_user"
)

type Direction string

const (
	NetworkMainnet = "Pi Network"
	NetworkTestnet = "Pi Testnet"
)

type PaymentState int

const (
	StateCreated PaymentState = iota
	StateSubmitted
	StateCompleted
	StateCancelled
)

func (s PaymentState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubmitted:
		return "submitted"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// PaymentArgs are the fields sent to the platform when creating an A2U payment.
// Metadata is forwarded as is, only its whitespace gets compacted.
type PaymentArgs struct {
	Amount   float64         `json:"amount"`
	Memo     string          `json:"memo"`
	Metadata json.RawMessage `json:"metadata"`
	Uid      string          `json:"uid"`
}

type PaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

type Transaction struct {
	Txid     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// Payment is the platform's representation of a payment. It is never
// mutated locally.
type Payment struct {
	Identifier  string          `json:"identifier"`
	UserUid     string          `json:"user_uid"`
	Amount      float64         `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    json.RawMessage `json:"metadata"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Direction   Direction       `json:"direction"`
	CreatedAt   string          `json:"created_at"`
	Network     string          `json:"network"`
	Status      PaymentStatus   `json:"status"`
	Transaction *Transaction    `json:"transaction"`
}

func (p Payment) State() PaymentState {
	switch {
	case p.Status.Cancelled || p.Status.UserCancelled:
		return StateCancelled
	case p.Status.DeveloperCompleted:
		return StateCompleted
	case p.Transaction != nil && p.Transaction.Txid != "":
		return StateSubmitted
	default:
		return StateCreated
	}
}

func (p Payment) IsIncomplete() bool {
	state := p.State()
	return state != StateCompleted && state != StateCancelled
}

// Txid returns the id of the transaction attached to the payment, if any.
func (p Payment) Txid() string {
	if p.Transaction == nil {
		return ""
	}
	return p.Transaction.Txid
}

func (p Payment) DecodeMetadata(v any) error {
	if len(p.Metadata) == 0 {
		return fmt.Errorf("payment %s has no metadata", p.Identifier)
	}
	return json.Unmarshal(p.Metadata, v)
}

type User struct {
	Uid      string `json:"uid"`
	Username string `json:"username"`
}

type createPaymentRequest struct {
	Payment PaymentArgs `json:"payment"`
}

type txidRequest struct {
	Txid string `json:"txid"`
}

type incompletePaymentsResponse struct {
	IncompleteServerPayments []Payment `json:"incomplete_server_payments"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}
