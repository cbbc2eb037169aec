package a2u_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pi-apps/a2u/internal/test/fakepi"
	"github.com/pi-apps/a2u/pkg/a2u"
	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

const apiKey = "test-api-key"

type testEnv struct {
	srv     *fakepi.Server
	horizon *horizonclient.MockClient
	wallet  *keypair.Full
	client  *a2u.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	wallet := keypair.MustRandom()
	srv := fakepi.NewServer(fakepi.Opts{ApiKey: apiKey, AppAddress: wallet.Address()})
	t.Cleanup(srv.Close)
	srv.SetUserAddress("U1", keypair.MustRandom().Address())

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

	return &testEnv{srv: srv, horizon: hmock, wallet: wallet, client: client}
}

func (e *testEnv) expectSubmission(txid string) {
	e.horizon.On("SubmitTransaction", mock.AnythingOfType("*txnbuild.Transaction")).
		Return(hProtocol.Transaction{Hash: txid}, nil).Once()
}

var testArgs = a2u.PaymentArgs{
	Amount:   3.14,
	Memo:     "Test",
	Metadata: json.RawMessage(`{"product_id":"apple-pie-1"}`),
	Uid:      "U1",
}

func TestInitialize(t *testing.T) {
	seed := keypair.MustRandom().Seed()

	t.Run("valid", func(t *testing.T) {
		for _, network := range []string{"mainnet", "testnet", "Pi Network", "pi testnet"} {
			client := a2u.NewClient()
			require.False(t, client.IsInitialized())
			require.NoError(t, client.Initialize(apiKey, seed, network))
			require.True(t, client.IsInitialized())
		}

		client := a2u.NewClient()
		require.NoError(t, client.Initialize(apiKey, seed, "Pi Network"))
		network, err := client.Network()
		require.NoError(t, err)
		require.Equal(t, a2u.Mainnet, network)
		require.Equal(t, pi.NetworkMainnet, network.Passphrase())
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name    string
			apiKey  string
			seed    string
			network string
			field   string
		}{
			{name: "empty api key", seed: seed, network: "testnet", field: "api key"},
			{name: "empty seed", apiKey: apiKey, network: "testnet", field: "seed"},
			{name: "malformed seed", apiKey: apiKey, seed: "SABC", network: "testnet", field: "seed"},
			{name: "unknown network", apiKey: apiKey, seed: seed, network: "devnet", field: "network"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := a2u.NewClient().Initialize(tt.apiKey, tt.seed, tt.network)
				var cfgErr *a2u.ConfigurationError
				require.True(t, errors.As(err, &cfgErr))
				require.Equal(t, tt.field, cfgErr.Field)
			})
		}
	})

	t.Run("only once", func(t *testing.T) {
		client := a2u.NewClient()
		require.NoError(t, client.Initialize(apiKey, seed, "testnet"))

		err := client.Initialize(apiKey, seed, "mainnet")
		var cfgErr *a2u.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))

		network, err := client.Network()
		require.NoError(t, err)
		require.Equal(t, a2u.Testnet, network)
	})

	t.Run("from mnemonic", func(t *testing.T) {
		_, err := a2u.New(a2u.Config{ApiKey: apiKey, Mnemonic: "not valid", Network: "testnet"})
		var cfgErr *a2u.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		require.Equal(t, "mnemonic", cfgErr.Field)
	})
}

func TestNotInitialized(t *testing.T) {
	client := a2u.NewClient()
	ctx := context.Background()

	calls := map[string]func() error{
		"create": func() error {
			_, err := client.CreatePayment(ctx, testArgs)
			return err
		},
		"submit": func() error {
			_, err := client.SubmitPayment(ctx, "P1", false)
			return err
		},
		"complete": func() error {
			_, err := client.CompletePayment(ctx, "P1", "T1")
			return err
		},
		"cancel": func() error {
			_, err := client.CancelPayment(ctx, "P1")
			return err
		},
		"get": func() error {
			_, err := client.GetPayment(ctx, "P1")
			return err
		},
		"incomplete": func() error {
			_, err := client.GetIncompleteServerPayments(ctx)
			return err
		},
		"approve": func() error {
			_, err := client.ApprovePayment(ctx, "P1")
			return err
		},
		"balance": func() error {
			_, err := client.GetBalance(ctx)
			return err
		},
		"network": func() error {
			_, err := client.Network()
			return err
		},
		"find transaction": func() error {
			_, err := client.FindTransaction(ctx, "P1", time.Time{})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), a2u.ErrNotInitialized)
		})
	}
}

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create submit complete", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.QueueIds("P1")
		env.expectSubmission("T1")

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)
		require.Equal(t, "P1", paymentId)

		payment, err := env.client.GetPayment(ctx, paymentId)
		require.NoError(t, err)
		require.Equal(t, testArgs.Amount, payment.Amount)
		require.Equal(t, testArgs.Memo, payment.Memo)
		require.Equal(t, testArgs.Uid, payment.UserUid)
		require.JSONEq(t, string(testArgs.Metadata), string(payment.Metadata))

		txid, err := env.client.SubmitPayment(ctx, paymentId, false)
		require.NoError(t, err)
		require.Equal(t, "T1", txid)

		payment, err = env.client.GetPayment(ctx, paymentId)
		require.NoError(t, err)
		require.Equal(t, pi.StateSubmitted, payment.State())

		payment, err = env.client.CompletePayment(ctx, paymentId, txid)
		require.NoError(t, err)
		require.True(t, payment.Status.DeveloperCompleted)
		require.True(t, payment.Status.TransactionVerified)
		require.NotNil(t, payment.Transaction)
		require.Equal(t, "T1", payment.Transaction.Txid)

		env.horizon.AssertNumberOfCalls(t, "SubmitTransaction", 1)
	})

	t.Run("complete twice fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.expectSubmission("T1")

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)
		txid, err := env.client.SubmitPayment(ctx, paymentId, false)
		require.NoError(t, err)
		_, err = env.client.CompletePayment(ctx, paymentId, txid)
		require.NoError(t, err)

		_, err = env.client.CompletePayment(ctx, paymentId, txid)
		var svcErr *pi.ServiceError
		require.True(t, errors.As(err, &svcErr))
		require.Equal(t, http.StatusConflict, svcErr.StatusCode)
		require.Equal(t, "already_completed", svcErr.Code)

		_, err = env.client.CancelPayment(ctx, paymentId)
		require.True(t, errors.As(err, &svcErr))
		require.Equal(t, http.StatusConflict, svcErr.StatusCode)
	})

	t.Run("submit twice is refused", func(t *testing.T) {
		env := newTestEnv(t)
		env.expectSubmission("T1")

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)
		_, err = env.client.SubmitPayment(ctx, paymentId, false)
		require.NoError(t, err)

		_, err = env.client.SubmitPayment(ctx, paymentId, false)
		require.ErrorIs(t, err, a2u.ErrAlreadySubmitted)
		env.horizon.AssertNumberOfCalls(t, "SubmitTransaction", 1)
	})

	t.Run("submit unknown payment", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.client.SubmitPayment(ctx, "unknown", false)
		require.Error(t, err)
		require.True(t, pi.IsNotFound(err))
		env.horizon.AssertNotCalled(t, "SubmitTransaction", mock.Anything)
	})

	t.Run("cancel", func(t *testing.T) {
		env := newTestEnv(t)

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)

		payment, err := env.client.CancelPayment(ctx, paymentId)
		require.NoError(t, err)
		require.True(t, payment.Status.Cancelled)
		require.Equal(t, pi.StateCancelled, payment.State())

		_, err = env.client.SubmitPayment(ctx, paymentId, false)
		require.ErrorIs(t, err, a2u.ErrPaymentClosed)
	})

	t.Run("blockchain failure propagates", func(t *testing.T) {
		env := newTestEnv(t)
		env.horizon.On("SubmitTransaction", mock.Anything).
			Return(hProtocol.Transaction{}, errors.New("connection reset")).Once()

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)

		txid, err := env.client.SubmitPayment(ctx, paymentId, false)
		require.Empty(t, txid)
		var bcErr *stellar.BlockchainError
		require.True(t, errors.As(err, &bcErr))

		payment, err := env.client.GetPayment(ctx, paymentId)
		require.NoError(t, err)
		require.Nil(t, payment.Transaction)
	})

	t.Run("direction mismatch", func(t *testing.T) {
		env := newTestEnv(t)

		paymentId, err := env.client.CreatePayment(ctx, testArgs)
		require.NoError(t, err)

		_, err = env.client.SubmitPayment(ctx, paymentId, true)
		require.ErrorIs(t, err, a2u.ErrDirectionMismatch)
	})

	t.Run("user to app is approved", func(t *testing.T) {
		env := newTestEnv(t)
		env.srv.AddPayment(pi.Payment{
			Identifier: "U2A1",
			UserUid:    "U1",
			Amount:     1,
			Memo:       "cake",
			Metadata:   json.RawMessage(`{"order":1}`),
			Direction:  pi.DirectionUserToApp,
		})

		txid, err := env.client.SubmitPayment(ctx, "U2A1", true)
		require.NoError(t, err)
		require.Empty(t, txid)

		payment, ok := env.srv.Payment("U2A1")
		require.True(t, ok)
		require.True(t, payment.Status.DeveloperApproved)
		env.horizon.AssertNotCalled(t, "SubmitTransaction", mock.Anything)
	})
}

func TestIncompleteServerPayments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.expectSubmission("T1")

	payments, err := env.client.GetIncompleteServerPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, payments)

	paymentId, err := env.client.CreatePayment(ctx, testArgs)
	require.NoError(t, err)

	_, err = env.client.CreatePayment(ctx, testArgs)
	var svcErr *pi.ServiceError
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, "You need to complete the ongoing payment first", svcErr.Message)

	payments, err = env.client.GetIncompleteServerPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, paymentId, payments[0].Identifier)

	var metadata map[string]string
	require.NoError(t, payments[0].DecodeMetadata(&metadata))
	require.Equal(t, "apple-pie-1", metadata["product_id"])

	txid, err := env.client.SubmitPayment(ctx, paymentId, false)
	require.NoError(t, err)
	_, err = env.client.CompletePayment(ctx, paymentId, txid)
	require.NoError(t, err)

	payments, err = env.client.GetIncompleteServerPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestValidatePaymentArgs(t *testing.T) {
	tests := []struct {
		name string
		args a2u.PaymentArgs
	}{
		{
			name: "zero amount",
			args: a2u.PaymentArgs{Memo: "m", Uid: "U1", Metadata: json.RawMessage(`{"a":1}`)},
		},
		{
			name: "negative amount",
			args: a2u.PaymentArgs{Amount: -1, Memo: "m", Uid: "U1", Metadata: json.RawMessage(`{"a":1}`)},
		},
		{
			name: "missing memo",
			args: a2u.PaymentArgs{Amount: 1, Uid: "U1", Metadata: json.RawMessage(`{"a":1}`)},
		},
		{
			name: "missing uid",
			args: a2u.PaymentArgs{Amount: 1, Memo: "m", Metadata: json.RawMessage(`{"a":1}`)},
		},
		{
			name: "missing metadata",
			args: a2u.PaymentArgs{Amount: 1, Memo: "m", Uid: "U1"},
		},
		{
			name: "empty metadata",
			args: a2u.PaymentArgs{Amount: 1, Memo: "m", Uid: "U1", Metadata: json.RawMessage(`{}`)},
		},
		{
			name: "metadata not an object",
			args: a2u.PaymentArgs{Amount: 1, Memo: "m", Uid: "U1", Metadata: json.RawMessage(`[1,2]`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, a2u.ValidatePaymentArgs(tt.args), a2u.ErrInvalidPaymentArgs)
		})
	}

	require.NoError(t, a2u.ValidatePaymentArgs(testArgs))
}

func TestWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	network, err := env.client.Network()
	require.NoError(t, err)
	require.Equal(t, a2u.Testnet, network)

	address, err := env.client.WalletAddress()
	require.NoError(t, err)
	require.Equal(t, env.wallet.Address(), address)

	balance, err := env.client.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, 1000.0, balance)
}

func TestAuthenticateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.srv.SetUserToken("user-token", pi.User{Uid: "U1", Username: "pioneer"})

	user, err := env.client.AuthenticateUser(ctx, "user-token")
	require.NoError(t, err)
	require.Equal(t, "U1", user.Uid)

	_, err = env.client.AuthenticateUser(ctx, "")
	require.Error(t, err)

	_, err = env.client.AuthenticateUser(ctx, "stolen-token")
	require.Error(t, err)
	var svcErr *pi.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, http.StatusUnauthorized, svcErr.StatusCode)
}

func TestFindTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	page := hProtocol.TransactionsPage{}
	page.Embedded.Records = []hProtocol.Transaction{{
		Hash: "T1", Successful: true, MemoType: "text", Memo: "P1", LedgerCloseTime: time.Now(),
	}}
	env.horizon.On("Transactions", mock.Anything).Return(page, nil)

	txid, err := env.client.FindTransaction(ctx, "P1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "T1", txid)

	txid, err = env.client.FindTransaction(ctx, "P2", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, txid)

	_, err = env.client.FindTransaction(ctx, "", time.Time{})
	require.Error(t, err)
}
