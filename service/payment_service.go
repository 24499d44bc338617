package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const expiryScanLimit = 200

var basisPoints = decimal.NewFromInt(10000)

type paymentService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	now        func() time.Time
}

// NewPaymentService creates a new payment request service
func NewPaymentService(uowFactory UnitOfWorkFactory, cfg *config.Config) PaymentService {
	return &paymentService{
		uowFactory: uowFactory,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RequestDeposit opens a deposit request. The wallet is credited on approval.
func (s *paymentService) RequestDeposit(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error) {
	return s.open(ctx, userID, models.PaymentKindDeposit, amount)
}

// RequestWithdrawal opens a withdrawal request and debits amount plus fee immediately
func (s *paymentService) RequestWithdrawal(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error) {
	return s.open(ctx, userID, models.PaymentKindWithdrawal, amount)
}

func (s *paymentService) open(ctx context.Context, userID int64, kind models.PaymentKind, amount int64) (*models.PaymentRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := s.requireEnabled(ctx, uow); err != nil {
		return nil, err
	}

	now := s.now()
	request := &models.PaymentRequest{
		UserID:    userID,
		Kind:      kind,
		Status:    models.PaymentStatusPending,
		Amount:    amount,
		ExpiresAt: now.Add(s.cfg.PaymentSessionExpiry),
		CreatedAt: now,
	}
	if kind == models.PaymentKindWithdrawal {
		request.Fee = withdrawalFee(amount, s.cfg.WithdrawalFeeBps)
		request.DebitedAmount = amount + request.Fee
	}

	if err := uow.PaymentRequestRepository().Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}

	if request.DebitedAmount > 0 {
		metadata := map[string]any{
			"amount": request.Amount,
			"fee":    request.Fee,
		}
		if _, err := debitWallet(ctx, uow, userID, request.DebitedAmount, models.TransactionTypeWithdrawal,
			relatedTo(models.RelatedTypePaymentRequest, strconv.FormatInt(request.ID, 10)), metadata); err != nil {
			return nil, fmt.Errorf("failed to debit withdrawal: %w", err)
		}
	}

	publishPaymentChange(uow, request, "", 0)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"requestID": request.ID,
		"userID":    userID,
		"kind":      kind,
		"amount":    amount,
	}).Info("Opened payment request")

	return request, nil
}

// Approve completes a pending request. Deposits credit the wallet; withdrawals
// were already debited.
func (s *paymentService) Approve(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := s.requireEnabled(ctx, uow); err != nil {
		return nil, err
	}

	request, err := s.transition(ctx, uow, requestID, models.PaymentStatusApproved)
	if err != nil {
		return nil, err
	}

	if request.Kind == models.PaymentKindDeposit {
		if _, err := creditWallet(ctx, uow, request.UserID, request.Amount, models.TransactionTypeDeposit,
			relatedTo(models.RelatedTypePaymentRequest, strconv.FormatInt(request.ID, 10)), nil); err != nil {
			return nil, fmt.Errorf("failed to credit deposit: %w", err)
		}
	}

	publishPaymentChange(uow, request, models.PaymentStatusPending, 0)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return request, nil
}

// Decline rejects a pending request and returns whatever it debited
func (s *paymentService) Decline(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	request, err := s.transition(ctx, uow, requestID, models.PaymentStatusDeclined)
	if err != nil {
		return nil, err
	}
	if err := s.refund(ctx, uow, request); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return request, nil
}

func (s *paymentService) GetRequestsByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	requests, err := uow.PaymentRequestRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment requests: %w", err)
	}
	return requests, nil
}

// ExpireStale expires pending requests whose session has lapsed and refunds them.
// Each request is handled in its own transaction.
func (s *paymentService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	scan := s.uowFactory.Create()
	if err := scan.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stale, err := scan.PaymentRequestRepository().ListExpiredPending(ctx, now, expiryScanLimit)
	scan.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired payment requests: %w", err)
	}

	expired := 0
	for _, request := range stale {
		if err := s.expire(ctx, request.ID); err != nil {
			if errors.Is(err, ErrPaymentRequestNotPending) {
				continue
			}
			log.WithError(err).WithField("requestID", request.ID).Error("Failed to expire payment request")
			continue
		}
		expired++
	}

	if expired > 0 {
		log.WithField("expired", expired).Info("Expired stale payment requests")
	}
	return expired, nil
}

func (s *paymentService) expire(ctx context.Context, requestID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	request, err := s.transition(ctx, uow, requestID, models.PaymentStatusExpired)
	if err != nil {
		return err
	}
	if err := s.refund(ctx, uow, request); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetPaymentsEnabled toggles the platform-wide payments switch
func (s *paymentService) SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	settings, err := uow.SettingsRepository().SetPaymentsEnabled(ctx, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithField("paymentsEnabled", enabled).Info("Updated payments switch")
	return settings, nil
}

func (s *paymentService) requireEnabled(ctx context.Context, uow UnitOfWork) error {
	settings, err := uow.SettingsRepository().Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get platform settings: %w", err)
	}
	if settings == nil || !settings.PaymentsEnabled {
		return ErrPaymentsDisabled
	}
	return nil
}

// transition moves a pending request to status and returns it with the new status applied.
// A request whose session has lapsed can no longer be approved.
func (s *paymentService) transition(ctx context.Context, uow UnitOfWork, requestID int64, status models.PaymentStatus) (*models.PaymentRequest, error) {
	repo := uow.PaymentRequestRepository()

	request, err := repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	if request == nil {
		return nil, ErrPaymentRequestNotFound
	}

	now := s.now()
	if status == models.PaymentStatusApproved && !now.Before(request.ExpiresAt) {
		return nil, ErrPaymentRequestExpired
	}

	moved, err := repo.Transition(ctx, requestID, models.PaymentStatusPending, status, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment request: %w", err)
	}
	if !moved {
		return nil, ErrPaymentRequestNotPending
	}

	request.Status = status
	request.ResolvedAt = &now
	return request, nil
}

// refund returns exactly what the request debited, never a recomputed amount
func (s *paymentService) refund(ctx context.Context, uow UnitOfWork, request *models.PaymentRequest) error {
	if request.DebitedAmount > 0 {
		if _, err := creditWallet(ctx, uow, request.UserID, request.DebitedAmount, models.TransactionTypeWithdrawalRefund,
			relatedTo(models.RelatedTypePaymentRequest, strconv.FormatInt(request.ID, 10)),
			map[string]any{"reason": string(request.Status)}); err != nil {
			return fmt.Errorf("failed to refund payment request: %w", err)
		}
	}
	publishPaymentChange(uow, request, models.PaymentStatusPending, request.DebitedAmount)
	return nil
}

// withdrawalFee returns amount*bps/10000 rounded down to a whole minor unit
func withdrawalFee(amount int64, bps int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(basisPoints).
		Floor().
		IntPart()
}

func publishPaymentChange(uow UnitOfWork, request *models.PaymentRequest, oldStatus models.PaymentStatus, refunded int64) {
	uow.EventBus().Publish(events.PaymentStateChangeEvent{
		RequestID: request.ID,
		UserID:    request.UserID,
		Kind:      request.Kind,
		OldStatus: oldStatus,
		NewStatus: request.Status,
		Refunded:  refunded,
	})
}
