package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BountyMetrics aggregates the collectors for the bounty operation surface.
type BountyMetrics struct {
	opsTotal     *prometheus.CounterVec
	payoutsTotal prometheus.Counter
	fundedKeys   prometheus.Gauge
}

var (
	bountyOnce     sync.Once
	bountyRegistry *BountyMetrics
)

// Bounty returns the process-wide bounty metrics, registering the collectors
// on first use.
func Bounty() *BountyMetrics {
	bountyOnce.Do(func() {
		bountyRegistry = &BountyMetrics{
			opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bounty_operations_total",
				Help: "Count of dispatched bounty operations by method and outcome.",
			}, []string{"method", "outcome"}),
			payoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bounty_payouts_total",
				Help: "Count of successful award payouts.",
			}),
			fundedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bounty_funded_keys",
				Help: "Number of bounty keys currently holding a positive balance.",
			}),
		}
		prometheus.MustRegister(
			bountyRegistry.opsTotal,
			bountyRegistry.payoutsTotal,
			bountyRegistry.fundedKeys,
		)
	})
	return bountyRegistry
}

// ObserveOp records one dispatched operation and its outcome label.
func (m *BountyMetrics) ObserveOp(method, outcome string) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(method, outcome).Inc()
}

// ObservePayout records one successful award payout.
func (m *BountyMetrics) ObservePayout() {
	if m == nil {
		return
	}
	m.payoutsTotal.Inc()
}

// SetFundedKeys records the current number of funded bounty keys.
func (m *BountyMetrics) SetFundedKeys(n int) {
	if m == nil {
		return
	}
	m.fundedKeys.Set(float64(n))
}
