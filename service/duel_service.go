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

// overdueScanLimit caps how many matches one timeout pass handles
const overdueScanLimit = 100

type duelService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	now        func() time.Time
}

// NewDuelService creates a new duel service
func NewDuelService(uowFactory UnitOfWorkFactory, cfg *config.Config) DuelService {
	return &duelService{
		uowFactory: uowFactory,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Challenge opens a match that waits for the opponent. Nothing is escrowed until Accept.
func (s *duelService) Challenge(ctx context.Context, challengerID, opponentID int64, stakePerRound, escrow int64) (*models.DuelMatch, error) {
	if challengerID == opponentID {
		return nil, fmt.Errorf("%w: cannot challenge yourself", ErrInvalidDuel)
	}
	if stakePerRound <= 0 || escrow <= 0 {
		return nil, ErrInvalidAmount
	}
	if escrow < stakePerRound {
		return nil, fmt.Errorf("%w: escrow must cover at least one round's stake", ErrInvalidDuel)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	for _, id := range []int64{challengerID, opponentID} {
		user, err := uow.UserRepository().GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
	}

	now := s.now()
	deadline := now.Add(s.cfg.DuelMoveTimeout)
	match := &models.DuelMatch{
		ID:            uuid.New(),
		Player1ID:     challengerID,
		Player2ID:     opponentID,
		State:         models.DuelStateChallenged,
		StakePerRound: stakePerRound,
		EscrowAmount:  escrow,
		Round:         1,
		MaxRounds:     s.cfg.DuelMaxRounds,
		MoveDeadline:  &deadline,
	}

	if err := uow.DuelRepository().Create(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	publishDuelChange(uow, match, "", false, false)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return match, nil
}

// Accept escrows the agreed pool from both players and starts the first round
func (s *duelService) Accept(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.State != models.DuelStateChallenged {
		return nil, ErrInvalidMatchState
	}
	if userID != match.Player2ID {
		return nil, ErrNotYourTurn
	}

	now := s.now()
	if match.MoveDeadline != nil && now.After(*match.MoveDeadline) {
		return nil, ErrMoveTimedOut
	}

	related := relatedTo(models.RelatedTypeDuelMatch, match.ID.String())
	for _, playerID := range []int64{match.Player1ID, match.Player2ID} {
		if _, err := debitWallet(ctx, uow, playerID, match.EscrowAmount, models.TransactionTypeDuelEscrow, related, nil); err != nil {
			return nil, fmt.Errorf("failed to escrow pool for user %d: %w", playerID, err)
		}
	}

	picker := match.Player1ID
	deadline := now.Add(s.cfg.DuelMoveTimeout)
	match.Pool1 = match.EscrowAmount
	match.Pool2 = match.EscrowAmount
	match.PickerID = &picker
	match.State = models.DuelStatePicking
	match.MoveDeadline = &deadline

	if err := s.save(ctx, uow, match, models.DuelStateChallenged, false); err != nil {
		return nil, err
	}
	return match, nil
}

// Decline removes a challenge that was never accepted. Either player may decline.
func (s *duelService) Decline(ctx context.Context, matchID uuid.UUID, userID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return err
	}
	if match.State != models.DuelStateChallenged {
		return ErrInvalidMatchState
	}

	deleted, err := uow.DuelRepository().Delete(ctx, match.ID, match.Version)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if !deleted {
		return ErrMatchConflict
	}

	publishDuelChange(uow, match, models.DuelStateChallenged, false, true)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Pick hides the picker's number for this round
func (s *duelService) Pick(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMatch, error) {
	if err := s.validateNumber(number); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.State != models.DuelStatePicking {
		return nil, ErrInvalidMatchState
	}
	if match.Mover() != userID {
		return nil, ErrNotYourTurn
	}

	now := s.now()
	if match.MoveDeadline != nil && now.After(*match.MoveDeadline) {
		return nil, ErrMoveTimedOut
	}

	deadline := now.Add(s.cfg.DuelMoveTimeout)
	match.HiddenPick = &number
	match.State = models.DuelStateGuessing
	match.MoveDeadline = &deadline

	if err := s.save(ctx, uow, match, models.DuelStatePicking, false); err != nil {
		return nil, err
	}
	return match, nil
}

// Guess resolves the current round. A correct guess moves one round's stake
// from the picker's pool to the guesser's.
func (s *duelService) Guess(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMoveResult, error) {
	if err := s.validateNumber(number); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.State != models.DuelStateGuessing || match.HiddenPick == nil {
		return nil, ErrInvalidMatchState
	}
	if match.Mover() != userID {
		return nil, ErrNotYourTurn
	}

	now := s.now()
	if match.MoveDeadline != nil && now.After(*match.MoveDeadline) {
		return nil, ErrMoveTimedOut
	}

	result := &models.DuelMoveResult{Match: match}
	if *match.HiddenPick == number {
		result.Correct = true
		result.Transferred = match.MoveStake(*match.PickerID)
	}
	s.advanceRound(match, now)
	result.Finished = match.State == models.DuelStateFinished

	if err := s.save(ctx, uow, match, models.DuelStateGuessing, false); err != nil {
		return nil, err
	}
	return result, nil
}

// Acknowledge records that a player has seen the final result. Once both have,
// each pool is refunded to its owner and the match is removed. A match nobody
// finishes acknowledging is closed the same way by the timeout sweep.
func (s *duelService) Acknowledge(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.State != models.DuelStateFinished {
		return nil, ErrInvalidMatchState
	}

	match.Acknowledge(userID)

	if !match.BothAcknowledged() {
		if err := s.save(ctx, uow, match, models.DuelStateFinished, false); err != nil {
			return nil, err
		}
		return match, nil
	}

	if err := s.closeMatch(ctx, uow, match); err != nil {
		return nil, err
	}

	publishDuelChange(uow, match, models.DuelStateFinished, false, true)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"matchID": match.ID,
		"pool1":   match.Pool1,
		"pool2":   match.Pool2,
	}).Info("Closed duel match")

	return match, nil
}

// GetMatch returns a match as seen by one of its players.
// The hidden number is only shown to the player who picked it.
func (s *duelService) GetMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := s.loadMatch(ctx, uow, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.PickerID == nil || *match.PickerID != userID {
		match.HiddenPick = nil
	}
	return match, nil
}

// ExpireTimedOutMoves applies the timeout rule to every overdue match.
// An unanswered challenge is withdrawn; a missed pick or guess forfeits one
// round's stake to the opponent and the match moves on. A finished match
// still waiting on an acknowledgement is closed and both pools refunded.
func (s *duelService) ExpireTimedOutMoves(ctx context.Context, now time.Time) (int, error) {
	scan := s.uowFactory.Create()
	if err := scan.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	overdue, err := scan.DuelRepository().ListOverdue(ctx, now, overdueScanLimit)
	scan.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue matches: %w", err)
	}

	changed := 0
	for _, match := range overdue {
		if err := s.forfeit(ctx, match, now); err != nil {
			if errors.Is(err, ErrMatchConflict) {
				// A player moved after the scan read the match
				continue
			}
			log.WithError(err).WithField("matchID", match.ID).Error("Failed to apply duel timeout")
			continue
		}
		changed++
	}

	if changed > 0 {
		log.WithFields(log.Fields{
			"overdue": len(overdue),
			"changed": changed,
		}).Info("Applied duel move timeouts")
	}
	return changed, nil
}

func (s *duelService) forfeit(ctx context.Context, match *models.DuelMatch, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	oldState := match.State
	switch match.State {
	case models.DuelStateChallenged:
		deleted, err := uow.DuelRepository().Delete(ctx, match.ID, match.Version)
		if err != nil {
			return fmt.Errorf("failed to delete match: %w", err)
		}
		if !deleted {
			return ErrMatchConflict
		}
		publishDuelChange(uow, match, oldState, true, true)

	case models.DuelStatePicking, models.DuelStateGuessing:
		mover := match.Mover()
		if mover == 0 {
			return ErrInvalidMatchState
		}
		match.MoveStake(mover)
		s.advanceRound(match, now)
		updated, err := uow.DuelRepository().Update(ctx, match)
		if err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}
		if !updated {
			return ErrMatchConflict
		}
		publishDuelChange(uow, match, oldState, true, false)

	case models.DuelStateFinished:
		if err := s.closeMatch(ctx, uow, match); err != nil {
			return err
		}
		publishDuelChange(uow, match, oldState, true, true)

	default:
		return ErrInvalidMatchState
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// closeMatch refunds each remaining pool to its owner and deletes the match under its version
func (s *duelService) closeMatch(ctx context.Context, uow UnitOfWork, match *models.DuelMatch) error {
	related := relatedTo(models.RelatedTypeDuelMatch, match.ID.String())
	metadata := map[string]any{
		"score1": match.Score1,
		"score2": match.Score2,
	}
	for _, playerID := range []int64{match.Player1ID, match.Player2ID} {
		pool := match.PoolOf(playerID)
		if pool <= 0 {
			continue
		}
		if _, err := creditWallet(ctx, uow, playerID, pool, models.TransactionTypeDuelRefund, related, metadata); err != nil {
			return fmt.Errorf("failed to refund pool for user %d: %w", playerID, err)
		}
	}

	deleted, err := uow.DuelRepository().Delete(ctx, match.ID, match.Version)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if !deleted {
		return ErrMatchConflict
	}
	return nil
}

// advanceRound swaps roles and starts the next round, or finishes the match
// once the round cap is passed or a pool is empty. A finished match keeps a
// deadline for the acknowledgements.
func (s *duelService) advanceRound(match *models.DuelMatch, now time.Time) {
	guesser := match.Guesser()
	deadline := now.Add(s.cfg.DuelMoveTimeout)
	match.HiddenPick = nil
	match.Round++
	match.MoveDeadline = &deadline

	if match.Round > match.MaxRounds || match.Pool1 == 0 || match.Pool2 == 0 {
		match.State = models.DuelStateFinished
		return
	}

	match.PickerID = &guesser
	match.State = models.DuelStatePicking
}

func (s *duelService) loadMatch(ctx context.Context, uow UnitOfWork, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	match, err := uow.DuelRepository().GetByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if !match.IsPlayer(userID) {
		return nil, ErrNotParticipant
	}
	return match, nil
}

// save writes the match under its version and commits
func (s *duelService) save(ctx context.Context, uow UnitOfWork, match *models.DuelMatch, oldState models.DuelState, forced bool) error {
	updated, err := uow.DuelRepository().Update(ctx, match)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if !updated {
		return ErrMatchConflict
	}

	publishDuelChange(uow, match, oldState, forced, false)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *duelService) validateNumber(number int32) error {
	if number < 1 || int(number) > s.cfg.DuelMaxNumber {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidPick, number, s.cfg.DuelMaxNumber)
	}
	return nil
}

func publishDuelChange(uow UnitOfWork, match *models.DuelMatch, oldState models.DuelState, forced, closed bool) {
	uow.EventBus().Publish(events.DuelStateChangeEvent{
		MatchID:  match.ID.String(),
		OldState: oldState,
		NewState: match.State,
		Round:    match.Round,
		Score1:   match.Score1,
		Score2:   match.Score2,
		Forced:   forced,
		Closed:   closed,
	})
}
