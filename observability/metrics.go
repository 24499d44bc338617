package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the settlement engine.
// It doubles as the engine's SettlementObserver.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	roundsSettledCounter metric.Int64Counter
	betsSettledCounter   metric.Int64Counter
	payoutCounter        metric.Int64Counter
	conflictsCounter     metric.Int64Counter
	stuckRoundsCounter   metric.Int64Counter
	betsPlacedCounter    metric.Int64Counter
	stakePlacedCounter   metric.Int64Counter
	settlementDuration   metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the exporter and instruments. With OTel disabled every
// Record call is a no-op.
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	reader, err := mp.newReader(ctx)
	if err != nil {
		return err
	}
	if reader == nil {
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("betengine")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.WithField("exporter", mp.config.OTelExporterType).Info("Metrics provider initialized")
	return nil
}

// newReader returns nil when export is disabled
func (mp *MetricsProvider) newReader(ctx context.Context) (sdkmetric.Reader, error) {
	var exporter sdkmetric.Exporter
	var err error

	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	return sdkmetric.NewPeriodicReader(
		exporter,
		sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
	), nil
}

// initializeWithReader wires instruments to a caller-supplied reader
func (mp *MetricsProvider) initializeWithReader(reader sdkmetric.Reader) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	mp.meter = mp.meterProvider.Meter("betengine")
	if err := mp.createInstruments(); err != nil {
		return err
	}
	mp.initialized = true
	return nil
}

func (mp *MetricsProvider) createInstruments() error {
	var err error

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&mp.roundsSettledCounter, RoundsSettledTotal, "Rounds moved to completed", "1"},
		{&mp.betsSettledCounter, BetsSettledTotal, "Bets settled by the engine", "1"},
		{&mp.payoutCounter, PayoutTotal, "Minor units credited as payouts", "1"},
		{&mp.conflictsCounter, SettlementConflictsTotal, "Settlement passes that lost a claim race", "1"},
		{&mp.stuckRoundsCounter, StuckRoundsTotal, "Rounds over the settle attempt limit", "1"},
		{&mp.betsPlacedCounter, BetsPlacedTotal, "Bets accepted by the ledger", "1"},
		{&mp.stakePlacedCounter, BetsPlacedStake, "Minor units staked", "1"},
	}
	for _, c := range counters {
		*c.target, err = mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	mp.settlementDuration, err = mp.meter.Float64Histogram(
		SettlementDuration,
		metric.WithDescription("Duration of a settling transaction in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create settlement duration histogram: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the exporter
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RoundSettled records a completed round
func (mp *MetricsProvider) RoundSettled(variant models.Variant, bets int, payout int64, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	ctx := context.Background()
	attrs := variantAttrs(variant)
	mp.roundsSettledCounter.Add(ctx, 1, attrs)
	mp.betsSettledCounter.Add(ctx, int64(bets), attrs)
	mp.payoutCounter.Add(ctx, payout, attrs)
	mp.settlementDuration.Record(ctx, duration.Seconds(), attrs)
}

// SettlementConflict records a pass that lost its claim
func (mp *MetricsProvider) SettlementConflict(variant models.Variant) {
	if !mp.isEnabled() {
		return
	}
	mp.conflictsCounter.Add(context.Background(), 1, variantAttrs(variant))
}

// StuckRound records a round that exceeded the attempt limit
func (mp *MetricsProvider) StuckRound(variant models.Variant) {
	if !mp.isEnabled() {
		return
	}
	mp.stuckRoundsCounter.Add(context.Background(), 1, variantAttrs(variant))
}

// SubscribeToBus counts committed bets
func (mp *MetricsProvider) SubscribeToBus(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBetPlaced, func(ctx context.Context, e events.Event) {
		placed, ok := e.(events.BetPlacedEvent)
		if !ok || !mp.isEnabled() {
			return
		}
		attrs := variantAttrs(placed.Variant)
		mp.betsPlacedCounter.Add(ctx, 1, attrs)
		mp.stakePlacedCounter.Add(ctx, placed.Stake, attrs)
	})
}

func variantAttrs(variant models.Variant) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(LabelVariant, string(variant)))
}

// isEnabled reports whether instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}
