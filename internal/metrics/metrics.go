package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks the latency of cash code operations
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cashcode_request_duration_seconds",
			Help: "Duration of cash code requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"},
	)

	// ClaimsTotal counts claim attempts by outcome
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashcode_claims_total",
			Help: "Claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DrawsTotal counts draw executions by outcome
	DrawsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashcode_draws_total",
			Help: "Draw executions by outcome",
		},
		[]string{"outcome"},
	)

	// GhostWinnersTotal counts draws demoted to missed
	GhostWinnersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashcode_ghost_winners_total",
			Help: "Winners who missed the claim window",
		},
	)

	// CarriedTicketsTotal counts tickets carried into a new week
	CarriedTicketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cashcode_carried_tickets_total",
			Help: "Tickets carried forward by rollovers",
		},
	)
)

// RecordRequestDuration records the duration of a request
func RecordRequestDuration(operation, status string, duration float64) {
	RequestDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordClaim counts one claim attempt
func RecordClaim(outcome string) {
	ClaimsTotal.WithLabelValues(outcome).Inc()
}

// RecordDraw counts one draw execution
func RecordDraw(outcome string) {
	DrawsTotal.WithLabelValues(outcome).Inc()
}

// RecordGhosts adds n ghost winners
func RecordGhosts(n int) {
	GhostWinnersTotal.Add(float64(n))
}

// RecordCarried adds n carried tickets
func RecordCarried(n int) {
	CarriedTicketsTotal.Add(float64(n))
}
