package stellar

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

const (
	txTimeout       = 180
	stroopsPerUnit  = 10_000_000
	seedLen         = 56
	nativeAssetType = "native"
	memoTypeText    = "text"
	horizonTimeout  = 60 * time.Second

	lookupPageSize = 200
	maxLookupPages = 10
	// tolerated drift between the local clock and ledger close times
	clockSkew = time.Minute
)

// TxTimeout is the validity window of every submitted transaction. Once it
// has elapsed an unconfirmed transaction can no longer be included.
const TxTimeout = txTimeout * time.Second

// Horizon is the subset of the horizon client used to submit and look up
// payments.
type Horizon interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	FetchBaseFee() (int64, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error)
	Transactions(request horizonclient.TransactionRequest) (hProtocol.TransactionsPage, error)
}

func NewHorizonClient(url string) *horizonclient.Client {
	return &horizonclient.Client{
		HorizonURL: strings.TrimRight(url, "/") + "/",
		HTTP:       &http.Client{Timeout: horizonTimeout},
	}
}

// Builder signs and submits single payment transactions from the wallet owned
// by seed. Submissions are serialized to keep the account sequence consistent.
type Builder struct {
	keypair    *keypair.Full
	passphrase string
	horizon    Horizon

	mu sync.Mutex
}

func NewBuilder(seed, passphrase string, horizon Horizon) (*Builder, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	if len(passphrase) <= 0 {
		return nil, fmt.Errorf("missing network passphrase")
	}
	if horizon == nil {
		return nil, fmt.Errorf("missing horizon client")
	}
	return &Builder{keypair: kp, passphrase: passphrase, horizon: horizon}, nil
}

func (b *Builder) Address() string {
	return b.keypair.Address()
}

func (b *Builder) Passphrase() string {
	return b.passphrase
}

// Balance returns the native balance of the wallet, in Pi.
func (b *Builder) Balance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	account, err := b.loadAccount()
	if err != nil {
		return 0, err
	}
	stroops, err := nativeBalance(account)
	if err != nil {
		return 0, err
	}
	return float64(stroops) / stroopsPerUnit, nil
}

// Submit builds a payment of amount Pi to destination carrying memo as text
// memo, signs it and submits it. It returns the hash of the accepted
// transaction.
func (b *Builder) Submit(
	ctx context.Context, destination string, value float64, memo string,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stroops, err := ToStroops(value)
	if err != nil {
		return "", &BlockchainError{Reason: "invalid amount", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	account, err := b.loadAccount()
	if err != nil {
		return "", err
	}
	fee, err := b.horizon.FetchBaseFee()
	if err != nil {
		return "", blockchainError("failed to fetch base fee", err)
	}

	balance, err := nativeBalance(account)
	if err != nil {
		return "", err
	}
	if stroops+fee > balance {
		return "", &BlockchainError{Reason: fmt.Sprintf(
			"insufficient balance: %s available, %s required",
			amount.StringFromInt64(balance), amount.StringFromInt64(stroops+fee),
		)}
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: destination,
				Amount:      amount.StringFromInt64(stroops),
				Asset:       txnbuild.NativeAsset{},
			},
		},
		BaseFee:       fee,
		Memo:          txnbuild.MemoText(memo),
		Preconditions: txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeout)},
	})
	if err != nil {
		return "", &BlockchainError{Reason: "failed to build transaction", Err: err}
	}

	tx, err = tx.Sign(b.passphrase, b.keypair)
	if err != nil {
		return "", &BlockchainError{Reason: "failed to sign transaction", Err: err}
	}

	// Once submitted the transaction may land even if ctx expires, so ctx is
	// not checked past this point.
	resp, err := b.horizon.SubmitTransaction(tx)
	if err != nil {
		return "", blockchainError("transaction rejected", err)
	}
	if resp.Hash != "" {
		return resp.Hash, nil
	}
	return tx.HashHex(b.passphrase)
}

// FindTransaction returns the hash of the most recent successful transaction
// sent by the wallet with memo as text memo, looking back until since. The
// hash is empty if there is no such transaction.
func (b *Builder) FindTransaction(
	ctx context.Context, memo string, since time.Time,
) (string, error) {
	request := horizonclient.TransactionRequest{
		ForAccount: b.keypair.Address(),
		Order:      horizonclient.OrderDesc,
		Limit:      lookupPageSize,
	}
	if !since.IsZero() {
		since = since.Add(-clockSkew)
	}

	for i := 0; i < maxLookupPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page, err := b.horizon.Transactions(request)
		if err != nil {
			return "", blockchainError("failed to list wallet transactions", err)
		}

		records := page.Embedded.Records
		for _, tx := range records {
			if !since.IsZero() && tx.LedgerCloseTime.Before(since) {
				return "", nil
			}
			if tx.Successful && tx.MemoType == memoTypeText && tx.Memo == memo {
				return tx.Hash, nil
			}
		}
		if len(records) < lookupPageSize {
			return "", nil
		}
		request.Cursor = records[len(records)-1].PagingToken()
	}

	return "", &BlockchainError{Reason: fmt.Sprintf(
		"no transaction with memo %s in the last %d, older ones were not checked",
		memo, maxLookupPages*lookupPageSize,
	)}
}

func (b *Builder) loadAccount() (hProtocol.Account, error) {
	account, err := b.horizon.AccountDetail(horizonclient.AccountRequest{
		AccountID: b.keypair.Address(),
	})
	if err != nil {
		return hProtocol.Account{}, blockchainError("failed to load wallet account", err)
	}
	return account, nil
}

func nativeBalance(account hProtocol.Account) (int64, error) {
	for _, balance := range account.Balances {
		if balance.Asset.Type != nativeAssetType {
			continue
		}
		stroops, err := amount.ParseInt64(balance.Balance)
		if err != nil {
			return 0, &BlockchainError{Reason: "invalid native balance", Err: err}
		}
		return stroops, nil
	}
	return 0, nil
}

// ToStroops converts an amount of Pi to the smallest on-chain unit.
func ToStroops(value float64) (int64, error) {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("amount must be positive, got %v", value)
	}
	return safecast.ToInt64(math.Round(value * stroopsPerUnit))
}

// ValidateSeed checks the shape of a secret seed without decoding it.
func ValidateSeed(seed string) error {
	if len(seed) != seedLen || !strings.HasPrefix(strings.ToUpper(seed), "S") {
		return fmt.Errorf("invalid seed: must be a %d characters secret starting with S", seedLen)
	}
	return nil
}
