package application

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/internal/infrastructure/db"
	"github.com/pi-apps/a2u/internal/test/fakepi"
	"github.com/pi-apps/a2u/pkg/a2u"
	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

const apiKey = "test-api-key"

type testEnv struct {
	srv         *fakepi.Server
	horizon     *horizonclient.MockClient
	svc         *Service
	repo        domain.PayoutRepository
	userAddress string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	wallet := keypair.MustRandom()
	srv := fakepi.NewServer(fakepi.Opts{ApiKey: apiKey, AppAddress: wallet.Address()})
	t.Cleanup(srv.Close)
	userAddress := keypair.MustRandom().Address()
	srv.SetUserAddress("U1", userAddress)

	hmock := &horizonclient.MockClient{}
	hmock.On("AccountDetail", mock.Anything).Return(hProtocol.Account{
		AccountID: wallet.Address(),
		Sequence:  10,
		Balances: []hProtocol.Balance{
			{Balance: "1000.0000000", Asset: base.Asset{Type: "native"}},
		},
	}, nil)
	hmock.On("FetchBaseFee").Return(int64(100000), nil)

	client, err := a2u.New(a2u.Config{
		ApiKey:  apiKey,
		Seed:    wallet.Seed(),
		Network: "testnet",
		ApiURL:  srv.URL,
	}, a2u.WithHorizon(hmock))
	require.NoError(t, err)

	repoManager, err := db.NewService(db.ServiceConfig{
		DbType: db.TypeBadger, DbConfig: []any{"", nil},
	})
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	svc, err := NewService(BuildInfo{}, client, repoManager, nil, 0)
	require.NoError(t, err)

	return &testEnv{
		srv:         srv,
		horizon:     hmock,
		svc:         svc,
		repo:        repoManager.Payouts(),
		userAddress: userAddress,
	}
}

func (e *testEnv) expectSubmission(txid string) {
	e.horizon.On("SubmitTransaction", mock.AnythingOfType("*txnbuild.Transaction")).
		Return(hProtocol.Transaction{Hash: txid}, nil).Once()
}

// expectTransactions makes the wallet history on chain hold the given
// transactions.
func (e *testEnv) expectTransactions(records ...hProtocol.Transaction) {
	page := hProtocol.TransactionsPage{}
	page.Embedded.Records = records
	e.horizon.On("Transactions", mock.Anything).Return(page, nil).Once()
}

// addPayout stores a payout as a crashed process would have left it.
func (e *testEnv) addPayout(t *testing.T, payout domain.Payout) {
	t.Helper()
	if payout.Metadata == nil {
		payout.Metadata = json.RawMessage(`{"order_id":"` + payout.Id + `"}`)
	}
	if payout.CreatedAt == 0 {
		payout.CreatedAt = e.svc.now().Unix()
		payout.UpdatedAt = payout.CreatedAt
	}
	require.NoError(t, e.repo.Add(context.Background(), payout))
}

// addRemotePayment stores an app-to-user payment on the fake platform.
func (e *testEnv) addRemotePayment(id, orderId, txid string) {
	payment := pi.Payment{
		Identifier: id,
		UserUid:    "U1",
		Amount:     1,
		Memo:       "Reward",
		Metadata:   json.RawMessage(`{"order_id":"` + orderId + `"}`),
		ToAddress:  e.userAddress,
		Direction:  pi.DirectionAppToUser,
		Network:    pi.NetworkTestnet,
		Status:     pi.PaymentStatus{DeveloperApproved: true},
	}
	if len(txid) > 0 {
		payment.Transaction = &pi.Transaction{Txid: txid}
	}
	e.srv.AddPayment(payment)
}

func (e *testEnv) later(d time.Duration) {
	now := time.Now().Add(d)
	e.svc.now = func() time.Time { return now }
}

var testRequest = PayoutRequest{
	Uid:     "U1",
	Amount:  3.14,
	Memo:    "Refund for apple pie",
	Product: json.RawMessage(`{"product_id":"apple-pie-1"}`),
}

func TestPayout(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.QueueIds("P1")
		env.expectSubmission("T1")

		payout, err := env.svc.Payout(ctx, testRequest)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, payout.Status)
		require.Equal(t, "P1", payout.PaymentId)
		require.Equal(t, "T1", payout.Txid)
		require.Empty(t, payout.Error)

		stored, err := env.svc.Get(ctx, payout.Id)
		require.NoError(t, err)
		require.Equal(t, *payout, *stored)

		payment, ok := env.srv.Payment("P1")
		require.True(t, ok)
		require.Equal(t, pi.StateCompleted, payment.State())

		var metadata orderMetadata
		require.NoError(t, payment.DecodeMetadata(&metadata))
		require.Equal(t, payout.Id, metadata.OrderId)
		require.JSONEq(t, string(testRequest.Product), string(metadata.Product))

		payouts, err := env.svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, payouts, 1)
	})

	t.Run("invalid", func(t *testing.T) {
		env := newTestEnv(t)

		fixtures := []PayoutRequest{
			{Amount: 1, Memo: "memo"},
			{Uid: "U1", Memo: "memo"},
			{Uid: "U1", Amount: 1},
			{Uid: "U1", Amount: 1, Memo: "memo", Product: json.RawMessage(`{`)},
		}
		for _, req := range fixtures {
			payout, err := env.svc.Payout(ctx, req)
			require.ErrorIs(t, err, a2u.ErrInvalidPaymentArgs)
			require.Nil(t, payout)
		}

		payouts, err := env.svc.List(ctx)
		require.NoError(t, err)
		require.Empty(t, payouts)
		require.Zero(t, env.srv.Calls("POST /v2/payments"))
	})

	t.Run("create failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.FailNextCreate(&pi.ServiceError{
			StatusCode: http.StatusInternalServerError, Code: "internal", Message: "boom",
		})

		payout, err := env.svc.Payout(ctx, testRequest)
		require.Error(t, err)
		require.NotNil(t, payout)
		require.Equal(t, domain.PayoutPending, payout.Status)
		require.NotEmpty(t, payout.Error)

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{payout.Id}, report.Failed)

		stored, err := env.svc.Get(ctx, payout.Id)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutFailed, stored.Status)
	})

	t.Run("rejected by network", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.QueueIds("P1")
		env.horizon.On("SubmitTransaction", mock.Anything).Return(
			hProtocol.Transaction{}, &horizonclient.Error{
				Problem: problem.P{
					Title:  "Transaction Failed",
					Status: 400,
					Extras: map[string]interface{}{
						"result_codes": map[string]interface{}{
							"transaction": "tx_bad_seq",
						},
					},
				},
			},
		).Once()

		payout, err := env.svc.Payout(ctx, testRequest)
		var bcErr *stellar.BlockchainError
		require.ErrorAs(t, err, &bcErr)
		require.Equal(t, domain.PayoutFailed, payout.Status)
		require.Empty(t, payout.Txid)

		payment, ok := env.srv.Payment("P1")
		require.True(t, ok)
		require.Equal(t, pi.StateCancelled, payment.State())
	})
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("crash after create", func(t *testing.T) {
		env := newTestEnv(t)
		env.addPayout(t, domain.Payout{
			Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward", Status: domain.PayoutPending,
		})
		env.addRemotePayment("P1", "order-1", "")

		// a previous transaction might still land
		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"order-1"}, report.Skipped)
		env.horizon.AssertNotCalled(t, "SubmitTransaction", mock.Anything)

		env.later(stellar.TxTimeout + time.Second)
		env.expectTransactions()
		env.expectSubmission("T1")

		report, err = env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"order-1"}, report.Completed)
		require.Empty(t, report.Errors)

		payout, err := env.svc.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, payout.Status)
		require.Equal(t, "P1", payout.PaymentId)
		require.Equal(t, "T1", payout.Txid)
	})

	t.Run("submission outcome unknown", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.QueueIds("P1")
		env.horizon.On("SubmitTransaction", mock.Anything).Return(
			hProtocol.Transaction{}, &horizonclient.Error{
				Problem: problem.P{Title: "Timeout", Status: http.StatusGatewayTimeout},
			},
		).Once()

		payout, err := env.svc.Payout(ctx, testRequest)
		require.Error(t, err)
		require.Equal(t, domain.PayoutCreated, payout.Status)
		require.Empty(t, payout.Txid)

		// the transaction landed despite the timeout
		env.later(stellar.TxTimeout + time.Second)
		env.expectTransactions(
			hProtocol.Transaction{
				Hash: "T9", Successful: true, MemoType: "text", Memo: "P9",
				LedgerCloseTime: time.Now(),
			},
			hProtocol.Transaction{
				Hash: "T1", Successful: true, MemoType: "text", Memo: "P1",
				LedgerCloseTime: time.Now(),
			},
		)

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{payout.Id}, report.Completed)
		require.Empty(t, report.Errors)
		env.horizon.AssertNumberOfCalls(t, "SubmitTransaction", 1)

		stored, err := env.svc.Get(ctx, payout.Id)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, stored.Status)
		require.Equal(t, "T1", stored.Txid)

		payment, ok := env.srv.Payment("P1")
		require.True(t, ok)
		require.Equal(t, pi.StateCompleted, payment.State())
		require.Equal(t, "T1", payment.Txid())
	})

	t.Run("chain lookup failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.addPayout(t, domain.Payout{
			Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward",
			PaymentId: "P1", Status: domain.PayoutCreated,
		})
		env.addRemotePayment("P1", "order-1", "")
		env.later(stellar.TxTimeout + time.Second)
		env.horizon.On("Transactions", mock.Anything).Return(
			hProtocol.TransactionsPage{}, &horizonclient.Error{
				Problem: problem.P{Title: "Service Unavailable", Status: http.StatusServiceUnavailable},
			},
		).Once()

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Contains(t, report.Errors, "order-1")
		env.horizon.AssertNotCalled(t, "SubmitTransaction", mock.Anything)

		payout, err := env.svc.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCreated, payout.Status)
		require.Empty(t, payout.Txid)
	})

	t.Run("crash after submit", func(t *testing.T) {
		env := newTestEnv(t)
		env.addPayout(t, domain.Payout{
			Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward",
			PaymentId: "P1", Status: domain.PayoutCreated,
		})
		env.addRemotePayment("P1", "order-1", "T1")

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"order-1"}, report.Completed)
		env.horizon.AssertNotCalled(t, "SubmitTransaction", mock.Anything)

		payout, err := env.svc.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, payout.Status)
		require.Equal(t, "T1", payout.Txid)
	})

	t.Run("platform not notified", func(t *testing.T) {
		env := newTestEnv(t)
		env.addPayout(t, domain.Payout{
			Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward",
			PaymentId: "P1", Txid: "T1", Status: domain.PayoutSubmitted,
		})
		env.addRemotePayment("P1", "order-1", "")

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"order-1"}, report.Completed)

		payment, ok := env.srv.Payment("P1")
		require.True(t, ok)
		require.Equal(t, pi.StateCompleted, payment.State())
		require.Equal(t, "T1", payment.Txid())
	})

	t.Run("orphan payment", func(t *testing.T) {
		env := newTestEnv(t)
		env.addRemotePayment("P1", "unknown-order", "")

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"P1"}, report.Orphans)

		payment, ok := env.srv.Payment("P1")
		require.True(t, ok)
		require.Equal(t, pi.StateCancelled, payment.State())
	})

	t.Run("closed remotely", func(t *testing.T) {
		env := newTestEnv(t)
		env.addPayout(t, domain.Payout{
			Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward",
			PaymentId: "P1", Status: domain.PayoutCreated,
		})
		env.addRemotePayment("P1", "order-1", "")
		env.addPayout(t, domain.Payout{
			Id: "order-2", Uid: "U1", Amount: 1, Memo: "Reward",
			PaymentId: "P2", Status: domain.PayoutSubmitted, Txid: "T2",
		})
		env.srv.AddPayment(pi.Payment{
			Identifier:  "P2",
			UserUid:     "U1",
			Amount:      1,
			Direction:   pi.DirectionAppToUser,
			Status:      pi.PaymentStatus{DeveloperApproved: true, DeveloperCompleted: true},
			Transaction: &pi.Transaction{Txid: "T2", Verified: true},
		})

		_, err := env.svc.payments.CancelPayment(ctx, "P1")
		require.NoError(t, err)

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"order-1"}, report.Cancelled)
		require.Equal(t, []string{"order-2"}, report.Completed)

		payout, err := env.svc.Get(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCancelled, payout.Status)

		payout, err = env.svc.Get(ctx, "order-2")
		require.NoError(t, err)
		require.Equal(t, domain.PayoutCompleted, payout.Status)
	})

	t.Run("nothing to do", func(t *testing.T) {
		env := newTestEnv(t)

		report, err := env.svc.Recover(ctx)
		require.NoError(t, err)
		require.Empty(t, report.Completed)
		require.Empty(t, report.Cancelled)
		require.Empty(t, report.Failed)
		require.Empty(t, report.Orphans)
		require.Empty(t, report.Errors)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addPayout(t, domain.Payout{
		Id: "order-1", Uid: "U1", Amount: 1, Memo: "Reward", Status: domain.PayoutPending,
	})
	env.addPayout(t, domain.Payout{
		Id: "order-2", Uid: "U1", Amount: 1, Memo: "Reward",
		PaymentId: "P2", Status: domain.PayoutCreated,
	})
	env.addRemotePayment("P2", "order-2", "")

	payout, err := env.svc.Cancel(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PayoutCancelled, payout.Status)
	require.Zero(t, env.srv.Calls("POST /v2/payments/:id/cancel"))

	payout, err = env.svc.Cancel(ctx, "order-2")
	require.NoError(t, err)
	require.Equal(t, domain.PayoutCancelled, payout.Status)

	payment, ok := env.srv.Payment("P2")
	require.True(t, ok)
	require.Equal(t, pi.StateCancelled, payment.State())

	_, err = env.svc.Cancel(ctx, "order-2")
	require.ErrorIs(t, err, ErrPayoutClosed)

	_, err = env.svc.Cancel(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrPayoutNotFound)
}

func TestWallet(t *testing.T) {
	env := newTestEnv(t)

	wallet, err := env.svc.Wallet(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(a2u.Testnet), wallet.Network)
	require.Equal(t, 1000.0, wallet.Balance)
	require.NotEmpty(t, wallet.Address)
}

func TestKeyedMutex(t *testing.T) {
	locks := newKeyedMutex()

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		require.Fail(t, "lock acquired twice")
	case <-time.After(100 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		require.Fail(t, "lock not released")
	}

	unlockB()
	require.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return len(locks.locks) == 0
	}, time.Second, 10*time.Millisecond)
}
