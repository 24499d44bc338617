package service

import (
	"fmt"
	"slices"

	"betengine/config"
	"betengine/models"

	"github.com/shopspring/decimal"
)

var (
	// Draw game multipliers applied to the stake
	drawWinMultiplier     = decimal.RequireFromString("1.3")
	drawPartialMultiplier = decimal.RequireFromString("0.8")
)

// Scorer computes the outcome of a pending bet against a round's target
type Scorer interface {
	Score(round *models.Round, bet *models.Bet) models.BetSettlement
}

// DrawScorer scores two-number picks against the round's two winners.
// Two matches pay 1.3x the stake and one match refunds 0.8x; anything else loses.
type DrawScorer struct{}

func (DrawScorer) Score(round *models.Round, bet *models.Bet) models.BetSettlement {
	settlement := models.BetSettlement{
		BetID:   bet.ID,
		UserID:  bet.UserID,
		RoundID: round.ID,
	}

	switch countMatches(bet.Picks, round.Winners) {
	case 2:
		settlement.Status = models.BetStatusWin
		settlement.Payout = applyMultiplier(bet.Stake, drawWinMultiplier)
	case 1:
		settlement.Status = models.BetStatusPartial
		settlement.Payout = applyMultiplier(bet.Stake, drawPartialMultiplier)
	default:
		settlement.Status = models.BetStatusLoss
	}
	return settlement
}

// ParityScorer pays a fixed reward when the pick equals the round's parity or is Both
type ParityScorer struct {
	Reward int64
}

func (s ParityScorer) Score(round *models.Round, bet *models.Bet) models.BetSettlement {
	settlement := models.BetSettlement{
		BetID:   bet.ID,
		UserID:  bet.UserID,
		RoundID: round.ID,
		Status:  models.BetStatusLoss,
	}
	if bet.ParityPick == models.ParityBoth || bet.ParityPick == round.Parity {
		settlement.Status = models.BetStatusWin
		settlement.Payout = s.Reward
	}
	return settlement
}

// NewScorers returns the scorer for every round variant
func NewScorers(cfg *config.Config) map[models.Variant]Scorer {
	return map[models.Variant]Scorer{
		models.VariantDraw:   DrawScorer{},
		models.VariantParity: ParityScorer{Reward: cfg.ParityReward},
	}
}

// applyMultiplier returns stake*multiplier rounded down to a whole minor unit
func applyMultiplier(stake int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(stake).Mul(multiplier).Floor().IntPart()
}

// countMatches counts distinct picks that appear among the winners
func countMatches(picks, winners []int32) int {
	matches := 0
	seen := make(map[int32]struct{}, len(picks))
	for _, p := range picks {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if slices.Contains(winners, p) {
			matches++
		}
	}
	return matches
}

// validatePick checks a bet's pick and stake against the rules of the round's variant
func validatePick(variant models.Variant, req PlaceBetRequest, cfg *config.Config) error {
	switch variant {
	case models.VariantDraw:
		if len(req.Picks) != 2 {
			return fmt.Errorf("%w: draw bets need exactly two numbers, got %d", ErrInvalidPick, len(req.Picks))
		}
		if req.Picks[0] == req.Picks[1] {
			return fmt.Errorf("%w: draw picks must be different numbers", ErrInvalidPick)
		}
		for _, p := range req.Picks {
			if p < 1 || int(p) > cfg.DrawNumberMax {
				return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidPick, p, cfg.DrawNumberMax)
			}
		}
		if req.Stake%cfg.DrawStakeUnit != 0 {
			return fmt.Errorf("%w: draw stakes must be a multiple of %d, got %d", ErrInvalidAmount, cfg.DrawStakeUnit, req.Stake)
		}
	case models.VariantParity:
		switch req.ParityPick {
		case models.ParityOdd, models.ParityEven, models.ParityBoth:
		default:
			return fmt.Errorf("%w: parity pick must be Odd, Even or Both, got %q", ErrInvalidPick, req.ParityPick)
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalidPick, variant)
	}
	return nil
}
