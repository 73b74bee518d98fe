package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BetsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_bets_settled_total",
			Help: "Settled bet attempts by outcome",
		},
		[]string{"outcome"},
	)
	DepositsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pam_deposits_completed_total",
			Help: "Deposits promoted to completed",
		},
	)
	WithdrawalsRequested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_withdrawals_requested_total",
			Help: "Withdrawal requests by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(BetsSettled)
	prometheus.MustRegister(DepositsCompleted)
	prometheus.MustRegister(WithdrawalsRequested)
}
