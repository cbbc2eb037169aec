package ports

import (
	"context"
	"time"

	"github.com/pi-apps/a2u/pkg/a2u"
)

// PaymentsClient is the payment lifecycle as exposed by *a2u.Client.
type PaymentsClient interface {
	CreatePayment(ctx context.Context, args a2u.PaymentArgs) (string, error)
	SubmitPayment(ctx context.Context, paymentId string, isUserToApp bool) (string, error)
	CompletePayment(ctx context.Context, paymentId, txid string) (*a2u.Payment, error)
	CancelPayment(ctx context.Context, paymentId string) (*a2u.Payment, error)
	GetPayment(ctx context.Context, paymentId string) (*a2u.Payment, error)
	GetIncompleteServerPayments(ctx context.Context) ([]a2u.Payment, error)
	FindTransaction(ctx context.Context, paymentId string, since time.Time) (string, error)
	GetBalance(ctx context.Context) (float64, error)
	WalletAddress() (string, error)
	Network() (a2u.Network, error)
}
