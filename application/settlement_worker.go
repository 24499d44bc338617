package application

import (
	"context"
	"time"

	"betengine/models"
	"betengine/service"

	log "github.com/sirupsen/logrus"
)

// SettlementWorker drives the settlement engine on a fixed interval so the
// platform keeps moving without an external scheduler hitting the cron endpoints
type SettlementWorker struct {
	settlement service.SettlementService
	duels      service.DuelService
	payments   service.PaymentService
	interval   time.Duration
	variants   []models.Variant
	now        func() time.Time
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(settlement service.SettlementService, duels service.DuelService, payments service.PaymentService, interval time.Duration) *SettlementWorker {
	return &SettlementWorker{
		settlement: settlement,
		duels:      duels,
		payments:   payments,
		interval:   interval,
		variants:   models.Variants,
		now:        time.Now,
	}
}

// Start begins ticking and returns a function that stops the worker
func (w *SettlementWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Settlement worker started")

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			w.RunOnce(ctx)

			select {
			case <-ctx.Done():
				log.Info("Settlement worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Settlement worker shutting down (stop requested)...")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// RunOnce settles every variant, then sweeps overdue duel moves and stale payment requests.
// Failures are logged and left for the next tick.
func (w *SettlementWorker) RunOnce(ctx context.Context) {
	now := w.now()

	for _, variant := range w.variants {
		result, err := w.settlement.Settle(ctx, variant, now)
		if err != nil {
			log.WithError(err).WithField("variant", variant).Error("Settlement pass failed")
			continue
		}
		if result.Settled || result.NewRoundID != nil {
			log.Info(result.Message())
		} else {
			log.Debug(result.Message())
		}
	}

	if w.duels != nil {
		expired, err := w.duels.ExpireTimedOutMoves(ctx, now)
		if err != nil {
			log.WithError(err).Error("Failed to expire duel moves")
		} else if expired > 0 {
			log.WithField("matches", expired).Info("Expired overdue duel moves")
		}
	}

	if w.payments != nil {
		expired, err := w.payments.ExpireStale(ctx, now)
		if err != nil {
			log.WithError(err).Error("Failed to expire payment requests")
		} else if expired > 0 {
			log.WithField("requests", expired).Info("Expired stale payment requests")
		}
	}
}
