package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SettlementResult describes what one settlement pass did
type SettlementResult struct {
	Variant     models.Variant
	RoundID     *uuid.UUID
	Settled     bool
	Resumed     bool // the round was taken over from a released or timed out claim
	Conflict    bool // another invocation held the round
	BetsSettled int
	TotalPayout int64
	NewRoundID  *uuid.UUID
}

// Message is the human readable summary returned by the trigger endpoint
func (r *SettlementResult) Message() string {
	switch {
	case r.Conflict && r.RoundID != nil:
		return fmt.Sprintf("%s: round %s is being settled by another invocation", r.Variant, r.RoundID)
	case r.Conflict:
		return fmt.Sprintf("%s: round is being settled by another invocation", r.Variant)
	case r.Settled && r.NewRoundID != nil:
		return fmt.Sprintf("%s: settled round %s (%d bets, %d paid out), started round %s",
			r.Variant, r.RoundID, r.BetsSettled, r.TotalPayout, r.NewRoundID)
	case r.Settled:
		return fmt.Sprintf("%s: settled round %s (%d bets, %d paid out)",
			r.Variant, r.RoundID, r.BetsSettled, r.TotalPayout)
	case r.NewRoundID != nil:
		return fmt.Sprintf("%s: no round to settle, started round %s", r.Variant, r.NewRoundID)
	default:
		return fmt.Sprintf("%s: nothing to settle", r.Variant)
	}
}

type settlementService struct {
	uowFactory UnitOfWorkFactory
	generator  *RoundGenerator
	scorers    map[models.Variant]Scorer
	mirror     BroadcastMirror
	observer   SettlementObserver
	cfg        *config.Config
}

// NewSettlementService creates the settlement engine. mirror and observer may be nil.
func NewSettlementService(
	uowFactory UnitOfWorkFactory,
	generator *RoundGenerator,
	mirror BroadcastMirror,
	observer SettlementObserver,
	cfg *config.Config,
) SettlementService {
	if observer == nil {
		observer = noopObserver{}
	}
	return &settlementService{
		uowFactory: uowFactory,
		generator:  generator,
		scorers:    NewScorers(cfg),
		mirror:     mirror,
		observer:   observer,
		cfg:        cfg,
	}
}

// Settle runs one pass for a variant:
//  1. find an expired active round (or a processing round whose claim lapsed)
//  2. claim it with a fresh token
//  3. score every pending bet and write outcomes, credits and the completion in one transaction
//  4. start the next round if the cool-down allows
//  5. mirror the new state to the broadcast channel
func (s *settlementService) Settle(ctx context.Context, variant models.Variant, now time.Time) (*SettlementResult, error) {
	result := &SettlementResult{Variant: variant}

	round, token, resumed, err := s.claimNext(ctx, variant, now)
	if err != nil {
		if errors.Is(err, ErrSettlementConflict) {
			result.Conflict = true
			s.observer.SettlementConflict(variant)
			return result, nil
		}
		return nil, err
	}

	if round != nil {
		result.RoundID = &round.ID
		result.Resumed = resumed

		start := time.Now()
		bets, payout, err := s.settleRound(ctx, round, token, now)
		if err != nil {
			if errors.Is(err, ErrSettlementConflict) {
				log.WithFields(log.Fields{
					"roundID": round.ID,
					"variant": variant,
				}).Info("Round settled by another invocation")
				result.Conflict = true
				s.observer.SettlementConflict(variant)
				return result, nil
			}
			if errors.Is(err, ErrBatchCommit) {
				s.releaseClaim(ctx, round.ID, token)
			}
			return nil, err
		}

		result.Settled = true
		result.BetsSettled = bets
		result.TotalPayout = payout
		s.observer.RoundSettled(variant, bets, payout, time.Since(start))

		completedAt := now
		round.Status = models.RoundStatusCompleted
		round.CompletedAt = &completedAt
		s.pushState(ctx, round)

		log.WithFields(log.Fields{
			"roundID":     round.ID,
			"variant":     variant,
			"betsSettled": bets,
			"totalPayout": payout,
			"resumed":     resumed,
		}).Info("Settled round")
	}

	next, created, err := s.generator.EnsureRound(ctx, variant, now)
	if err != nil {
		// The settled round is already committed; the next pass retries generation.
		log.WithError(err).WithField("variant", variant).Error("Failed to generate next round")
		return result, nil
	}
	if created {
		result.NewRoundID = &next.ID
		s.pushState(ctx, next)
	}

	return result, nil
}

// claimNext moves the round due for settlement to processing under a new token.
// It returns a nil round when there is nothing to do.
func (s *settlementService) claimNext(ctx context.Context, variant models.Variant, now time.Time) (*models.Round, uuid.UUID, bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, uuid.Nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rounds := uow.RoundRepository()
	token := uuid.New()

	round, err := rounds.FindExpiredActive(ctx, variant, now)
	if err != nil {
		return nil, uuid.Nil, false, fmt.Errorf("failed to find expired round: %w", err)
	}

	resumed := false
	if round != nil {
		claimed, err := rounds.Claim(ctx, round.ID, token, now)
		if err != nil {
			return nil, uuid.Nil, false, fmt.Errorf("failed to claim round: %w", err)
		}
		if !claimed {
			return nil, uuid.Nil, false, ErrSettlementConflict
		}
	} else {
		round, err = rounds.FindStaleProcessing(ctx, variant, now.Add(-s.cfg.StuckRoundTimeout))
		if err != nil {
			return nil, uuid.Nil, false, fmt.Errorf("failed to find stale round: %w", err)
		}
		if round == nil {
			return nil, uuid.Nil, false, nil
		}

		if round.ClaimAttempts >= s.cfg.MaxSettleAttempts {
			log.WithFields(log.Fields{
				"alert":         true,
				"roundID":       round.ID,
				"variant":       variant,
				"claimAttempts": round.ClaimAttempts,
				"claimedAt":     round.ClaimedAt,
			}).Error("Round stuck in processing")
			s.observer.StuckRound(variant)
			return nil, uuid.Nil, false, fmt.Errorf("%w: round %s after %d attempts", ErrStuckRound, round.ID, round.ClaimAttempts)
		}

		claimed, err := rounds.Reclaim(ctx, round.ID, round.ClaimToken, token, now)
		if err != nil {
			return nil, uuid.Nil, false, fmt.Errorf("failed to reclaim round: %w", err)
		}
		if !claimed {
			return nil, uuid.Nil, false, ErrSettlementConflict
		}
		resumed = true

		log.WithFields(log.Fields{
			"roundID":       round.ID,
			"variant":       variant,
			"claimAttempts": round.ClaimAttempts + 1,
		}).Warn("Resuming settlement of stale round")
	}

	if err := uow.Commit(); err != nil {
		return nil, uuid.Nil, false, fmt.Errorf("failed to commit claim: %w", err)
	}

	round.Status = models.RoundStatusProcessing
	round.ClaimToken = &token
	return round, token, resumed, nil
}

// settleRound pays out every pending bet of a claimed round and marks it completed.
// Either all of it commits or none of it does.
func (s *settlementService) settleRound(ctx context.Context, round *models.Round, token uuid.UUID, now time.Time) (int, int64, error) {
	scorer, ok := s.scorers[round.Variant]
	if !ok {
		return 0, 0, fmt.Errorf("no scorer for variant %q", round.Variant)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rounds := uow.RoundRepository()

	held, err := rounds.HoldClaim(ctx, round.ID, token)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock round: %w", err)
	}
	if !held {
		return 0, 0, ErrSettlementConflict
	}

	pending, err := uow.BetRepository().GetPendingByRound(ctx, round.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get pending bets: %w", err)
	}

	staged := make([]models.BetSettlement, 0, len(pending))
	for _, bet := range pending {
		staged = append(staged, scorer.Score(round, bet))
	}

	applied, err := uow.BetRepository().ApplySettlements(ctx, staged, s.cfg.SettleBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBatchCommit, err)
	}

	settled := 0
	var totalPayout int64
	for _, a := range applied {
		if !a.Applied {
			continue
		}
		settled++
		if a.Payout <= 0 {
			continue
		}
		totalPayout += a.Payout
		uow.EventBus().Publish(events.BalanceChangeEvent{
			UserID:          a.UserID,
			OldBalance:      a.BalanceAfter - a.Payout,
			NewBalance:      a.BalanceAfter,
			TransactionType: models.TransactionTypeBetPayout,
			ChangeAmount:    a.Payout,
		})
	}

	completed, err := rounds.MarkCompleted(ctx, round.ID, token, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to complete round: %w", err)
	}
	if !completed {
		return 0, 0, ErrSettlementConflict
	}

	uow.EventBus().Publish(events.RoundSettledEvent{
		RoundID:     round.ID.String(),
		Variant:     round.Variant,
		BetsSettled: settled,
		TotalPayout: totalPayout,
		Winners:     round.Winners,
		Parity:      string(round.Parity),
		CompletedAt: now.UnixMilli(),
	})

	if err := uow.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBatchCommit, err)
	}

	return settled, totalPayout, nil
}

// releaseClaim hands a round back after a failed batch so the next pass resumes it
// without waiting for the stuck timeout
func (s *settlementService) releaseClaim(ctx context.Context, roundID uuid.UUID, token uuid.UUID) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).WithField("roundID", roundID).Warn("Failed to release settlement claim")
		return
	}
	defer uow.Rollback()

	released, err := uow.RoundRepository().ReleaseClaim(ctx, roundID, token)
	if err != nil {
		log.WithError(err).WithField("roundID", roundID).Warn("Failed to release settlement claim")
		return
	}
	if !released {
		return
	}
	if err := uow.Commit(); err != nil {
		log.WithError(err).WithField("roundID", roundID).Warn("Failed to release settlement claim")
	}
}

// pushState mirrors a round to the broadcast channel. Failures are only logged.
func (s *settlementService) pushState(ctx context.Context, round *models.Round) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Push(ctx, models.NewBroadcastState(round)); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"roundID": round.ID,
			"variant": round.Variant,
		}).Warn("Failed to mirror round state")
	}
}

type noopObserver struct{}

func (noopObserver) RoundSettled(models.Variant, int, int64, time.Duration) {}
func (noopObserver) SettlementConflict(models.Variant)                      {}
func (noopObserver) StuckRound(models.Variant)                              {}
