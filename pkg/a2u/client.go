// Package a2u drives app-to-user payments on the Pi platform: it creates the
// payment, pays it on chain from the app wallet and reconciles its completion.
//
// The client holds no payment state between calls. Integrators must persist
// the payment identifier and the txid of every payment, and must serialize
// operations on the same identifier.
package a2u

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

type (
	PaymentArgs = pi.PaymentArgs
	Payment     = pi.Payment
)

type Client struct {
	log        *logrus.Entry
	httpClient *http.Client
	apiURL     string
	horizonURL string
	horizon    stellar.Horizon

	mu          sync.RWMutex
	initialized bool
	network     Network
	api         *pi.Api
	builder     *stellar.Builder
}

// NewClient returns a client that must be initialized before use.
func NewClient(opts ...Option) *Client {
	c := &Client{
		log: logrus.WithField("module", "a2u"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New returns an initialized client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.ApiURL) > 0 {
		opts = append(opts, WithApiURL(cfg.ApiURL))
	}
	if len(cfg.HorizonURL) > 0 {
		opts = append(opts, WithHorizonURL(cfg.HorizonURL))
	}
	c := NewClient(opts...)

	seed, err := cfg.seed()
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(cfg.ApiKey, seed, cfg.Network); err != nil {
		return nil, err
	}
	return c, nil
}

// Initialize sets the credentials of the client. It can be called only once.
func (c *Client) Initialize(apiKey, seed, network string) error {
	if len(strings.TrimSpace(apiKey)) <= 0 {
		return &ConfigurationError{Field: "api key", Reason: "must not be empty"}
	}
	if len(seed) <= 0 {
		return &ConfigurationError{Field: "seed", Reason: "must not be empty"}
	}
	if err := stellar.ValidateSeed(seed); err != nil {
		return &ConfigurationError{Field: "seed", Reason: err.Error()}
	}
	net, err := ParseNetwork(network)
	if err != nil {
		return err
	}
	params := networks[net]

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return &ConfigurationError{Field: "client", Reason: "is already initialized"}
	}

	apiURL := params.apiURL
	if len(c.apiURL) > 0 {
		apiURL = c.apiURL
	}
	api := pi.NewApi(apiURL, apiKey)
	if c.httpClient != nil {
		api.Client = c.httpClient
	}

	horizon := c.horizon
	if horizon == nil {
		horizonURL := params.horizonURL
		if len(c.horizonURL) > 0 {
			horizonURL = c.horizonURL
		}
		horizon = stellar.NewHorizonClient(horizonURL)
	}
	builder, err := stellar.NewBuilder(seed, params.passphrase, horizon)
	if err != nil {
		return &ConfigurationError{Field: "seed", Reason: err.Error()}
	}

	c.api = api
	c.builder = builder
	c.network = net
	c.initialized = true

	c.log.WithFields(logrus.Fields{
		"network": net,
		"wallet":  builder.Address(),
	}).Debug("client initialized")
	return nil
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *Client) Network() (Network, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return "", ErrNotInitialized
	}
	return c.network, nil
}

// WalletAddress returns the public address of the app wallet.
func (c *Client) WalletAddress() (string, error) {
	_, builder, err := c.collaborators()
	if err != nil {
		return "", err
	}
	return builder.Address(), nil
}

func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	_, builder, err := c.collaborators()
	if err != nil {
		return 0, err
	}
	return builder.Balance(ctx)
}

// CreatePayment opens an app-to-user payment and returns its identifier.
// Nothing prevents creating the same payment twice: the caller must record the
// returned identifier before anything else.
func (c *Client) CreatePayment(ctx context.Context, args PaymentArgs) (string, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return "", err
	}
	if err := ValidatePaymentArgs(args); err != nil {
		return "", err
	}

	payment, err := api.CreatePayment(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to create payment: %w", err)
	}
	if len(payment.Identifier) <= 0 {
		return "", fmt.Errorf("failed to create payment: platform returned no identifier")
	}

	c.log.WithFields(logrus.Fields{
		"payment_id": payment.Identifier,
		"uid":        args.Uid,
	}).Debug("payment created")
	return payment.Identifier, nil
}

// SubmitPayment pays the payment on chain. For app-to-user payments the app
// wallet signs and broadcasts a transaction carrying the identifier as memo,
// then the platform is told about the txid. User-to-app payments are signed by
// the user, so they only get approved and the txid already linked, if any, is
// returned.
//
// If the broadcast succeeds but the platform cannot be notified, the txid is
// returned together with the error: the transaction exists and must be
// recorded. Never call SubmitPayment again for a payment that may already have
// been broadcast.
func (c *Client) SubmitPayment(
	ctx context.Context, paymentId string, isUserToApp bool,
) (string, error) {
	api, builder, err := c.collaborators()
	if err != nil {
		return "", err
	}

	payment, err := api.GetPayment(ctx, paymentId)
	if err != nil {
		return "", fmt.Errorf("failed to get payment %s: %w", paymentId, err)
	}

	direction := pi.DirectionAppToUser
	if isUserToApp {
		direction = pi.DirectionUserToApp
	}
	if payment.Direction != direction {
		return "", fmt.Errorf(
			"%w: payment %s is %s", ErrDirectionMismatch, paymentId, payment.Direction,
		)
	}
	if state := payment.State(); state == pi.StateCompleted || state == pi.StateCancelled {
		return "", fmt.Errorf("%w: payment %s is %s", ErrPaymentClosed, paymentId, state)
	}

	log := c.log.WithField("payment_id", paymentId)

	if isUserToApp {
		if !payment.Status.DeveloperApproved {
			if payment, err = api.ApprovePayment(ctx, paymentId); err != nil {
				return "", fmt.Errorf("failed to approve payment %s: %w", paymentId, err)
			}
			log.Debug("payment approved")
		}
		return payment.Txid(), nil
	}

	if txid := payment.Txid(); len(txid) > 0 {
		return "", fmt.Errorf("%w: payment %s is linked to %s", ErrAlreadySubmitted, paymentId, txid)
	}

	txid, err := builder.Submit(ctx, payment.ToAddress, payment.Amount, payment.Identifier)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction for payment %s: %w", paymentId, err)
	}
	log = log.WithField("txid", txid)
	log.Debug("transaction submitted")

	if _, err := api.SubmitTransaction(context.WithoutCancel(ctx), paymentId, txid); err != nil {
		log.WithError(err).Warn("transaction broadcast but platform not notified")
		return txid, fmt.Errorf(
			"transaction %s broadcast for payment %s but platform not notified: %w",
			txid, paymentId, err,
		)
	}
	return txid, nil
}

// CompletePayment links txid to the payment and marks it completed. Completing
// an already completed payment fails with a *pi.ServiceError.
func (c *Client) CompletePayment(ctx context.Context, paymentId, txid string) (*Payment, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}
	if len(txid) <= 0 {
		return nil, fmt.Errorf("missing txid")
	}

	payment, err := api.CompletePayment(ctx, paymentId, txid)
	if err != nil {
		return nil, fmt.Errorf("failed to complete payment %s: %w", paymentId, err)
	}

	c.log.WithFields(logrus.Fields{"payment_id": paymentId, "txid": txid}).Debug("payment completed")
	return payment, nil
}

// CancelPayment cancels a payment that is not completed yet.
func (c *Client) CancelPayment(ctx context.Context, paymentId string) (*Payment, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}

	payment, err := api.CancelPayment(ctx, paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel payment %s: %w", paymentId, err)
	}

	c.log.WithField("payment_id", paymentId).Debug("payment cancelled")
	return payment, nil
}

// ApprovePayment gives developer approval to a user-to-app payment.
func (c *Client) ApprovePayment(ctx context.Context, paymentId string) (*Payment, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}

	payment, err := api.ApprovePayment(ctx, paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to approve payment %s: %w", paymentId, err)
	}
	return payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentId string) (*Payment, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}

	payment, err := api.GetPayment(ctx, paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", paymentId, err)
	}
	return payment, nil
}

// GetIncompleteServerPayments returns the app-to-user payment left open, if
// any. The platform allows at most one at a time.
func (c *Client) GetIncompleteServerPayments(ctx context.Context) ([]Payment, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}

	payments, err := api.IncompleteServerPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get incomplete payments: %w", err)
	}
	if len(payments) > 1 {
		c.log.Warnf("platform reported %d incomplete payments", len(payments))
	}
	return payments, nil
}

// FindTransaction looks on chain for a successful transaction of the app
// wallet carrying the payment identifier as memo, sent after since. The txid is
// empty if there is none. Check it before deciding to submit a payment again
// whose previous submission had an unknown outcome.
func (c *Client) FindTransaction(
	ctx context.Context, paymentId string, since time.Time,
) (string, error) {
	_, builder, err := c.collaborators()
	if err != nil {
		return "", err
	}
	if len(paymentId) <= 0 {
		return "", fmt.Errorf("missing payment id")
	}

	txid, err := builder.FindTransaction(ctx, paymentId, since)
	if err != nil {
		return "", fmt.Errorf("failed to look up transaction of payment %s: %w", paymentId, err)
	}
	return txid, nil
}

// AuthenticateUser resolves the access token the frontend obtained for a user.
func (c *Client) AuthenticateUser(ctx context.Context, accessToken string) (*pi.User, error) {
	api, _, err := c.collaborators()
	if err != nil {
		return nil, err
	}
	if len(accessToken) <= 0 {
		return nil, fmt.Errorf("missing access token")
	}

	user, err := api.Me(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}
	return user, nil
}

func (c *Client) collaborators() (*pi.Api, *stellar.Builder, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, nil, ErrNotInitialized
	}
	return c.api, c.builder, nil
}

func ValidatePaymentArgs(args PaymentArgs) error {
	if args.Amount <= 0 || math.IsNaN(args.Amount) || math.IsInf(args.Amount, 0) {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPaymentArgs)
	}
	if len(strings.TrimSpace(args.Memo)) <= 0 {
		return fmt.Errorf("%w: missing memo", ErrInvalidPaymentArgs)
	}
	if len(strings.TrimSpace(args.Uid)) <= 0 {
		return fmt.Errorf("%w: missing uid", ErrInvalidPaymentArgs)
	}

	var metadata map[string]json.RawMessage
	if err := json.Unmarshal(args.Metadata, &metadata); err != nil {
		return fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidPaymentArgs)
	}
	if len(metadata) <= 0 {
		return fmt.Errorf("%w: missing metadata", ErrInvalidPaymentArgs)
	}
	return nil
}
