package market

import (
	"github.com/storemarket/market-core/cmd/marketd/metrics"
)

var prefix = "marketd"

func (m *Market) initMetrics() {
	m.metricBillsCreated = metrics.Meter.NewInt64Counter(prefix + ".bills_created_total")
	m.metricBillsCancelled = metrics.Meter.NewInt64Counter(prefix + ".bills_cancelled_total")
	m.metricOrdersCreated = metrics.Meter.NewInt64Counter(prefix + ".orders_created_total")
	m.metricOrdersActivated = metrics.Meter.NewInt64Counter(prefix + ".orders_activated_total")
	m.metricOrdersFinished = metrics.Meter.NewInt64Counter(prefix + ".orders_finished_total")
	m.metricOrdersSlashed = metrics.Meter.NewInt64Counter(prefix + ".orders_slashed_total")
	m.metricChallengesStarted = metrics.Meter.NewInt64Counter(prefix + ".challenges_started_total")
	m.metricEscrowedUnits = metrics.Meter.NewInt64Counter(prefix + ".escrowed_units_total")
	m.metricWithdrawnUnits = metrics.Meter.NewInt64Counter(prefix + ".withdrawn_units_total")
	m.metricSlashedUnits = metrics.Meter.NewInt64Counter(prefix + ".slashed_units_total")
}
