package observability

// Metric name prefixes
const (
	MetricPrefix = "betengine"
)

// Metric names
const (
	// Settlement metrics
	RoundsSettledTotal       = MetricPrefix + ".settlement.rounds_settled_total"
	BetsSettledTotal         = MetricPrefix + ".settlement.bets_settled_total"
	PayoutTotal              = MetricPrefix + ".settlement.payout_total"
	SettlementConflictsTotal = MetricPrefix + ".settlement.conflicts_total"
	StuckRoundsTotal         = MetricPrefix + ".settlement.stuck_rounds_total"
	SettlementDuration       = MetricPrefix + ".settlement.duration"

	// Ledger metrics
	BetsPlacedTotal = MetricPrefix + ".bets.placed_total"
	BetsPlacedStake = MetricPrefix + ".bets.placed_stake_total"
)

// Label keys
const (
	LabelVariant = "variant"
)
