package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "starfarm",
			Subsystem: "economy",
			Name:      "purchases_total",
			Help:      "Shop purchases by item kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	bids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "starfarm",
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Auction bids by outcome.",
		},
		[]string{"outcome"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "starfarm",
			Subsystem: "auction",
			Name:      "settlements_total",
			Help:      "Auctions resolved by result.",
		},
		[]string{"result"},
	)

	incomeCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "starfarm",
			Subsystem: "economy",
			Name:      "income_collected_stars_total",
			Help:      "Stars credited from farm income.",
		},
	)

	referralRewards = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "starfarm",
			Subsystem: "economy",
			Name:      "referral_rewards_total",
			Help:      "Referral rewards paid out.",
		},
	)
)

func init() {
	Registry.MustRegister(purchases, bids, settlements, incomeCollected, referralRewards)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordPurchase(kind, outcome string) {
	purchases.WithLabelValues(kind, outcome).Inc()
}

func RecordBid(outcome string) {
	bids.WithLabelValues(outcome).Inc()
}

func RecordSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

func RecordIncome(amount int64) {
	if amount > 0 {
		incomeCollected.Add(float64(amount))
	}
}

func RecordReferralReward() {
	referralRewards.Inc()
}
