package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	log "github.com/sirupsen/logrus"
)

type betService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	now        func() time.Time
}

// NewBetService creates a new bet service
func NewBetService(uowFactory UnitOfWorkFactory, cfg *config.Config) BetService {
	return &betService{
		uowFactory: uowFactory,
		cfg:        cfg,
		now:        time.Now,
	}
}

// PlaceBet debits the stake and records a pending bet against an open round.
// The round row is share-locked for the whole transaction so a concurrent
// claim cannot move it to processing between the check and the insert.
func (s *betService) PlaceBet(ctx context.Context, req PlaceBetRequest) (*models.Bet, error) {
	if req.Stake <= 0 {
		return nil, ErrInvalidAmount
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := uow.RoundRepository().GetByIDForShare(ctx, req.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}

	now := s.now()
	if !round.AcceptsBets(now) {
		return nil, ErrRoundClosed
	}

	if err := validatePick(round.Variant, req, s.cfg); err != nil {
		return nil, err
	}

	bet := &models.Bet{
		UserID:   req.UserID,
		RoundID:  round.ID,
		Variant:  round.Variant,
		Stake:    req.Stake,
		Status:   models.BetStatusPending,
		PlacedAt: now,
	}
	if round.Variant == models.VariantDraw {
		bet.Picks = append([]int32(nil), req.Picks...)
	} else {
		bet.ParityPick = req.ParityPick
	}

	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	metadata := map[string]any{
		"round_id": round.ID.String(),
		"variant":  string(round.Variant),
	}
	if _, err := debitWallet(ctx, uow, req.UserID, req.Stake, models.TransactionTypeBetPlaced,
		relatedTo(models.RelatedTypeBet, strconv.FormatInt(bet.ID, 10)), metadata); err != nil {
		return nil, fmt.Errorf("failed to debit stake: %w", err)
	}

	uow.EventBus().Publish(events.BetPlacedEvent{
		BetID:   bet.ID,
		UserID:  bet.UserID,
		RoundID: round.ID.String(),
		Variant: round.Variant,
		Stake:   bet.Stake,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betID":   bet.ID,
		"userID":  bet.UserID,
		"roundID": round.ID,
		"stake":   bet.Stake,
	}).Debug("Placed bet")

	return bet, nil
}

// GetCurrentRound returns the open round for a variant, or nil
func (s *betService) GetCurrentRound(ctx context.Context, variant models.Variant) (*models.Round, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := uow.RoundRepository().GetOpen(ctx, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to get open round: %w", err)
	}
	return round, nil
}

func (s *betService) GetRecentRounds(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rounds, err := uow.RoundRepository().ListRecent(ctx, variant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func (s *betService) GetBetsByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}
	return bets, nil
}
