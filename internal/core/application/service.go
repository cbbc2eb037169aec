package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/internal/core/ports"
	"github.com/pi-apps/a2u/pkg/a2u"
	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

var (
	ErrPayoutClosed = errors.New("payout is already closed")
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// PayoutRequest describes an app-to-user payment to make. Product is the
// integrator's own metadata, kept next to the order id on the platform.
type PayoutRequest struct {
	Uid     string
	Amount  float64
	Memo    string
	Product json.RawMessage
}

type WalletInfo struct {
	Network string
	Address string
	Balance float64
}

// RecoveryReport lists payout ids by outcome. Orphans are the ids of
// platform payments without a payout, cancelled on the spot.
type RecoveryReport struct {
	Completed []string          `json:"completed"`
	Cancelled []string          `json:"cancelled"`
	Failed    []string          `json:"failed"`
	Skipped   []string          `json:"skipped"`
	Orphans   []string          `json:"orphans"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r *RecoveryReport) addError(id string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[id] = err.Error()
}

// orderMetadata is what the service attaches to every payment it creates.
type orderMetadata struct {
	OrderId string          `json:"order_id"`
	Product json.RawMessage `json:"product,omitempty"`
}

type Service struct {
	BuildInfo BuildInfo

	payments         ports.PaymentsClient
	payoutRepo       domain.PayoutRepository
	schedulerSvc     ports.SchedulerService
	recoveryInterval time.Duration

	locks *keyedMutex
	now   func() time.Time
}

func NewService(
	buildInfo BuildInfo,
	payments ports.PaymentsClient,
	repoManager ports.RepoManager,
	schedulerSvc ports.SchedulerService,
	recoveryInterval time.Duration,
) (*Service, error) {
	if payments == nil {
		return nil, fmt.Errorf("missing payments client")
	}
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if recoveryInterval < 0 {
		return nil, fmt.Errorf("invalid recovery interval %s", recoveryInterval)
	}
	return &Service{
		BuildInfo:        buildInfo,
		payments:         payments,
		payoutRepo:       repoManager.Payouts(),
		schedulerSvc:     schedulerSvc,
		recoveryInterval: recoveryInterval,
		locks:            newKeyedMutex(),
		now:              time.Now,
	}, nil
}

// Start runs a first recovery and schedules the next ones.
func (s *Service) Start(ctx context.Context) error {
	report, err := s.Recover(ctx)
	if err != nil {
		log.WithError(err).Warn("startup recovery failed")
	} else {
		logReport(report)
	}

	if s.schedulerSvc == nil || s.recoveryInterval <= 0 {
		log.Info("periodic recovery disabled")
		return nil
	}

	s.schedulerSvc.Start()
	if err := s.schedulerSvc.ScheduleRecovery(s.recoveryInterval, func() {
		report, err := s.Recover(context.Background())
		if err != nil {
			log.WithError(err).Warn("scheduled recovery failed")
			return
		}
		logReport(report)
	}); err != nil {
		return err
	}
	log.Infof("recovery scheduled every %s", s.recoveryInterval)
	return nil
}

func (s *Service) Stop() {
	if s.schedulerSvc != nil {
		s.schedulerSvc.Stop()
		log.Info("scheduler stopped")
	}
}

func (s *Service) WhenNextRecovery() time.Time {
	if s.schedulerSvc == nil {
		return time.Time{}
	}
	return s.schedulerSvc.WhenNextRecovery()
}

func (s *Service) Wallet(ctx context.Context) (*WalletInfo, error) {
	network, err := s.payments.Network()
	if err != nil {
		return nil, err
	}
	address, err := s.payments.WalletAddress()
	if err != nil {
		return nil, err
	}
	balance, err := s.payments.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &WalletInfo{
		Network: string(network),
		Address: address,
		Balance: balance,
	}, nil
}

// Payout records a new payout and drives it to completion. Every step is
// persisted before the next one starts so that Recover can resume it.
// The returned payout reflects the last persisted state, also on error.
func (s *Service) Payout(ctx context.Context, req PayoutRequest) (*domain.Payout, error) {
	id := uuid.NewString()
	metadata, err := json.Marshal(orderMetadata{OrderId: id, Product: req.Product})
	if err != nil {
		return nil, fmt.Errorf("%w: product metadata must be valid JSON", a2u.ErrInvalidPaymentArgs)
	}
	if err := a2u.ValidatePaymentArgs(a2u.PaymentArgs{
		Amount:   req.Amount,
		Memo:     req.Memo,
		Metadata: metadata,
		Uid:      req.Uid,
	}); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	payout := domain.Payout{
		Id:        id,
		Uid:       req.Uid,
		Amount:    req.Amount,
		Memo:      req.Memo,
		Metadata:  metadata,
		Status:    domain.PayoutPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.payoutRepo.Add(ctx, payout); err != nil {
		return nil, fmt.Errorf("failed to record payout: %w", err)
	}
	log.WithFields(log.Fields{"payout_id": id, "uid": req.Uid}).Debug("payout recorded")

	return s.advance(ctx, &payout)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Payout, error) {
	return s.payoutRepo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Payout, error) {
	return s.payoutRepo.GetAll(ctx)
}

// Cancel closes an open payout, cancelling the platform payment if it was
// already created.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Payout, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	payout, err := s.payoutRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status.IsFinal() {
		return nil, fmt.Errorf("%w: payout %s is %s", ErrPayoutClosed, id, payout.Status)
	}

	if len(payout.PaymentId) > 0 {
		if _, err := s.payments.CancelPayment(ctx, payout.PaymentId); err != nil {
			return nil, err
		}
	}
	payout.Status = domain.PayoutCancelled
	payout.Error = ""
	if err := s.update(ctx, payout); err != nil {
		return nil, err
	}
	log.WithField("payout_id", id).Info("payout cancelled")
	return payout, nil
}

// Recover reconciles the ledger with the platform after a crash or a failed
// step: open platform payments are relinked to their payout through the
// order id and driven to completion, orphans are cancelled, and open payouts
// the platform no longer reports as incomplete are closed.
func (s *Service) Recover(ctx context.Context) (*RecoveryReport, error) {
	incomplete, err := s.payments.GetIncompleteServerPayments(ctx)
	if err != nil {
		return nil, err
	}

	report := &RecoveryReport{}
	seen := make(map[string]struct{})

	for _, payment := range incomplete {
		payout, err := s.findPayout(ctx, payment)
		if err != nil && !errors.Is(err, domain.ErrPayoutNotFound) {
			report.addError(payment.Identifier, err)
			continue
		}
		if payout == nil {
			if _, err := s.payments.CancelPayment(ctx, payment.Identifier); err != nil {
				report.addError(payment.Identifier, err)
				continue
			}
			log.WithField("payment_id", payment.Identifier).Info("orphan payment cancelled")
			report.Orphans = append(report.Orphans, payment.Identifier)
			continue
		}

		seen[payout.Id] = struct{}{}
		s.resume(ctx, payout.Id, payment, report)
	}

	open, err := s.payoutRepo.GetOpen(ctx)
	if err != nil {
		return report, err
	}
	for _, payout := range open {
		if _, ok := seen[payout.Id]; ok {
			continue
		}
		s.close(ctx, payout.Id, report)
	}

	return report, nil
}

// resume drives the payout linked to an incomplete platform payment.
func (s *Service) resume(
	ctx context.Context, id string, payment a2u.Payment, report *RecoveryReport,
) {
	unlock := s.locks.lock(id)
	defer unlock()

	payout, err := s.payoutRepo.Get(ctx, id)
	if err != nil {
		report.addError(id, err)
		return
	}
	lastUpdate := time.Unix(payout.UpdatedAt, 0)

	switch payout.Status {
	case domain.PayoutCancelled, domain.PayoutFailed:
		if _, err := s.payments.CancelPayment(ctx, payment.Identifier); err != nil {
			report.addError(id, err)
			return
		}
		report.Cancelled = append(report.Cancelled, id)
		return
	}

	if len(payout.PaymentId) <= 0 {
		payout.PaymentId = payment.Identifier
	}
	if txid := payment.Txid(); len(txid) > 0 {
		payout.Txid = txid
	}
	if len(payout.Txid) > 0 {
		payout.Status = domain.PayoutSubmitted
	} else {
		payout.Status = domain.PayoutCreated
	}

	// A transaction from a previous attempt might still be included until
	// its timeout elapses.
	canSubmit := payout.Status != domain.PayoutCreated ||
		s.now().Sub(lastUpdate) >= stellar.TxTimeout
	if !canSubmit {
		report.Skipped = append(report.Skipped, id)
		return
	}

	// The outcome of a previous submission may be unknown, pay only if it
	// never landed.
	if payout.Status == domain.PayoutCreated {
		txid, err := s.payments.FindTransaction(
			ctx, payout.PaymentId, time.Unix(payout.CreatedAt, 0),
		)
		if err != nil {
			report.addError(id, err)
			return
		}
		if len(txid) > 0 {
			log.WithFields(log.Fields{"payout_id": id, "txid": txid}).
				Info("found transaction of previous submission")
			payout.Txid = txid
			payout.Status = domain.PayoutSubmitted
		}
	}

	if err := s.update(ctx, payout); err != nil {
		report.addError(id, err)
		return
	}

	payout, err = s.advance(ctx, payout)
	if err != nil {
		report.addError(id, err)
		return
	}
	report.collect(payout)
}

// close settles an open payout the platform does not list as incomplete.
func (s *Service) close(ctx context.Context, id string, report *RecoveryReport) {
	unlock := s.locks.lock(id)
	defer unlock()

	payout, err := s.payoutRepo.Get(ctx, id)
	if err != nil {
		report.addError(id, err)
		return
	}
	if payout.Status.IsFinal() {
		return
	}

	if len(payout.PaymentId) <= 0 {
		payout.Status = domain.PayoutFailed
		payout.Error = "payment was never created"
		if err := s.update(ctx, payout); err != nil {
			report.addError(id, err)
			return
		}
		report.Failed = append(report.Failed, id)
		return
	}

	payment, err := s.payments.GetPayment(ctx, payout.PaymentId)
	if err != nil {
		report.addError(id, err)
		return
	}
	switch payment.State() {
	case pi.StateCompleted:
		payout.Status = domain.PayoutCompleted
		payout.Txid = payment.Txid()
		payout.Error = ""
	case pi.StateCancelled:
		payout.Status = domain.PayoutCancelled
	default:
		report.Skipped = append(report.Skipped, id)
		return
	}
	if err := s.update(ctx, payout); err != nil {
		report.addError(id, err)
		return
	}
	report.collect(payout)
}

// advance moves the payout forward from its current status until it is
// completed or a step fails. Must be called holding the payout lock.
func (s *Service) advance(
	ctx context.Context, payout *domain.Payout,
) (*domain.Payout, error) {
	logger := log.WithField("payout_id", payout.Id)

	if payout.Status == domain.PayoutPending {
		paymentId, err := s.payments.CreatePayment(ctx, a2u.PaymentArgs{
			Amount:   payout.Amount,
			Memo:     payout.Memo,
			Metadata: payout.Metadata,
			Uid:      payout.Uid,
		})
		if err != nil {
			return s.fail(ctx, payout, err)
		}
		payout.PaymentId = paymentId
		payout.Status = domain.PayoutCreated
		payout.Error = ""
		if err := s.update(ctx, payout); err != nil {
			return payout, err
		}
		logger = logger.WithField("payment_id", paymentId)
		logger.Debug("payment created")
	}

	if payout.Status == domain.PayoutCreated {
		txid, err := s.payments.SubmitPayment(ctx, payout.PaymentId, false)
		if len(txid) > 0 {
			payout.Txid = txid
			payout.Status = domain.PayoutSubmitted
		}
		if err != nil {
			var bcErr *stellar.BlockchainError
			if errors.As(err, &bcErr) && len(bcErr.ResultCodes) > 0 {
				// rejected by the network, nothing was paid
				return s.abort(ctx, payout, err)
			}
			return s.fail(ctx, payout, err)
		}
		payout.Error = ""
		if err := s.update(ctx, payout); err != nil {
			return payout, err
		}
		logger.WithField("txid", txid).Debug("payment submitted")
	}

	if payout.Status == domain.PayoutSubmitted {
		if _, err := s.payments.CompletePayment(ctx, payout.PaymentId, payout.Txid); err != nil {
			if !pi.IsConflict(err) {
				return s.fail(ctx, payout, err)
			}
			payment, getErr := s.payments.GetPayment(ctx, payout.PaymentId)
			if getErr != nil || payment.State() != pi.StateCompleted {
				return s.fail(ctx, payout, err)
			}
		}
		payout.Status = domain.PayoutCompleted
		payout.Error = ""
		if err := s.update(ctx, payout); err != nil {
			return payout, err
		}
		logger.Info("payout completed")
	}

	return payout, nil
}

// fail records err on the payout without changing its status, leaving it to
// Recover.
func (s *Service) fail(
	ctx context.Context, payout *domain.Payout, err error,
) (*domain.Payout, error) {
	payout.Error = err.Error()
	if updateErr := s.update(ctx, payout); updateErr != nil {
		log.WithError(updateErr).WithField("payout_id", payout.Id).
			Warn("failed to record payout error")
	}
	log.WithError(err).WithField("payout_id", payout.Id).Warnf(
		"payout stopped at status %s", payout.Status,
	)
	return payout, err
}

// abort cancels the platform payment of a payout that cannot be paid.
func (s *Service) abort(
	ctx context.Context, payout *domain.Payout, err error,
) (*domain.Payout, error) {
	if _, cancelErr := s.payments.CancelPayment(ctx, payout.PaymentId); cancelErr != nil {
		log.WithError(cancelErr).WithField("payment_id", payout.PaymentId).
			Warn("failed to cancel payment")
		return s.fail(ctx, payout, err)
	}
	payout.Status = domain.PayoutFailed
	payout.Error = err.Error()
	if updateErr := s.update(ctx, payout); updateErr != nil {
		return payout, updateErr
	}
	log.WithError(err).WithField("payout_id", payout.Id).Warn("payout failed")
	return payout, err
}

func (s *Service) update(ctx context.Context, payout *domain.Payout) error {
	payout.UpdatedAt = s.now().Unix()
	if err := s.payoutRepo.Update(ctx, *payout); err != nil {
		return fmt.Errorf("failed to update payout %s: %w", payout.Id, err)
	}
	return nil
}

func (s *Service) findPayout(ctx context.Context, payment a2u.Payment) (*domain.Payout, error) {
	payout, err := s.payoutRepo.GetByPaymentId(ctx, payment.Identifier)
	if err == nil {
		return payout, nil
	}
	if !errors.Is(err, domain.ErrPayoutNotFound) {
		return nil, err
	}

	var metadata orderMetadata
	if err := payment.DecodeMetadata(&metadata); err != nil || len(metadata.OrderId) <= 0 {
		return nil, domain.ErrPayoutNotFound
	}
	payout, err = s.payoutRepo.Get(ctx, metadata.OrderId)
	if err != nil {
		return nil, err
	}
	if payout.Uid != payment.UserUid {
		return nil, domain.ErrPayoutNotFound
	}
	return payout, nil
}

func (r *RecoveryReport) collect(payout *domain.Payout) {
	switch payout.Status {
	case domain.PayoutCompleted:
		r.Completed = append(r.Completed, payout.Id)
	case domain.PayoutCancelled:
		r.Cancelled = append(r.Cancelled, payout.Id)
	case domain.PayoutFailed:
		r.Failed = append(r.Failed, payout.Id)
	}
}

func logReport(report *RecoveryReport) {
	fields := log.Fields{
		"completed": len(report.Completed),
		"cancelled": len(report.Cancelled),
		"failed":    len(report.Failed),
		"skipped":   len(report.Skipped),
		"errors":    len(report.Errors),
	}
	if len(report.Errors) > 0 {
		log.WithFields(fields).Warn("recovery done with errors")
		return
	}
	log.WithFields(fields).Debug("recovery done")
}
