package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	log "github.com/sirupsen/logrus"
)

// RoundGenerator creates new active rounds with a random target
type RoundGenerator struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
	random     io.Reader
}

// NewRoundGenerator creates a round generator backed by crypto/rand
func NewRoundGenerator(uowFactory UnitOfWorkFactory, cfg *config.Config) *RoundGenerator {
	return &RoundGenerator{
		uowFactory: uowFactory,
		cfg:        cfg,
		random:     rand.Reader,
	}
}

// Generate builds (without persisting) a round for variant starting at now
func (g *RoundGenerator) Generate(variant models.Variant, now time.Time) (*models.Round, error) {
	round := &models.Round{
		Variant:   variant,
		Status:    models.RoundStatusActive,
		StartTime: now,
		EndTime:   now.Add(g.cfg.RoundDuration),
	}

	switch variant {
	case models.VariantDraw:
		drawn, err := drawDistinct(g.random, 1, int32(g.cfg.DrawNumberMax), g.cfg.DrawCount)
		if err != nil {
			return nil, fmt.Errorf("failed to draw numbers: %w", err)
		}
		round.TargetValues = drawn
		round.Winners = append([]int32(nil), drawn[:2]...)

	case models.VariantParity:
		n1, err := randomInt(g.random, int64(g.cfg.ParityNumberMax)+1)
		if err != nil {
			return nil, err
		}
		n2, err := randomInt(g.random, int64(g.cfg.ParityNumberMax)+1)
		if err != nil {
			return nil, err
		}
		round.TargetValues = []int32{int32(n1), int32(n2)}
		round.Winners = []int32{}
		round.Parity = models.ParityOf(int32(n1), int32(n2))

	default:
		return nil, fmt.Errorf("unknown game variant %q", variant)
	}

	return round, nil
}

// EnsureRound creates the next round for variant when no round is open and the
// cool-down since the last completion has elapsed. It returns the created round
// and true, or nil and false when the guard did not allow a new round.
func (g *RoundGenerator) EnsureRound(ctx context.Context, variant models.Variant, now time.Time) (*models.Round, bool, error) {
	uow := g.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rounds := uow.RoundRepository()

	// Concurrent generators for the same variant queue here, so the guard below
	// and the insert see each other's results.
	if err := rounds.LockVariant(ctx, variant); err != nil {
		return nil, false, fmt.Errorf("failed to lock variant %s: %w", variant, err)
	}

	open, err := rounds.GetOpen(ctx, variant)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get open round: %w", err)
	}
	if open != nil {
		return nil, false, nil
	}

	last, err := rounds.GetLatestCompleted(ctx, variant)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get last completed round: %w", err)
	}
	if last != nil && last.CompletedAt != nil && now.Sub(*last.CompletedAt) < g.cfg.RoundCooldown {
		return nil, false, nil
	}

	round, err := g.Generate(variant, now)
	if err != nil {
		return nil, false, err
	}

	created, err := rounds.Create(ctx, round)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create round: %w", err)
	}
	if !created {
		return nil, false, nil
	}

	uow.EventBus().Publish(events.RoundCreatedEvent{
		RoundID: round.ID.String(),
		Variant: variant,
		EndTime: round.EndTime.UnixMilli(),
	})

	if err := uow.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roundID": round.ID,
		"variant": variant,
		"endTime": round.EndTime,
	}).Info("Created round")

	return round, true, nil
}
