package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedemptionDuration tracks the latency of redemption attempts
	RedemptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "redemption_attempt_duration_seconds",
			Help: "Duration of redemption attempts in seconds",
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
				10.0,  // 10s
			},
		},
		[]string{"outcome"}, // success or a failure reason
	)

	// LedgerReservations counts reserve outcomes
	LedgerReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_ledger_reservations_total",
			Help: "Campaign budget reservations by outcome",
		},
		[]string{"outcome"},
	)

	// CodeClaims counts claim outcomes
	CodeClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_code_claims_total",
			Help: "Code claims by outcome",
		},
		[]string{"outcome"},
	)

	// CompensationFailures counts rollback steps that themselves failed
	CompensationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_compensation_failures_total",
			Help: "Compensation steps that failed and left drift behind",
		},
		[]string{"step"},
	)

	// LedgerDrift reports remaining_uses minus its recomputed value per campaign
	LedgerDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redemption_ledger_drift",
			Help: "Difference between stored and recomputed remaining uses",
		},
		[]string{"campaign_id"},
	)
)

// RecordRedemptionDuration records the duration of a redemption attempt
func RecordRedemptionDuration(outcome string, duration float64) {
	RedemptionDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordReservation records a ledger reservation outcome
func RecordReservation(outcome string) {
	LedgerReservations.WithLabelValues(outcome).Inc()
}

// RecordClaim records a code claim outcome
func RecordClaim(outcome string) {
	CodeClaims.WithLabelValues(outcome).Inc()
}

// RecordCompensationFailure records a failed compensation step
func RecordCompensationFailure(step string) {
	CompensationFailures.WithLabelValues(step).Inc()
}

// SetLedgerDrift records the audited drift of a campaign. Only drifting
// campaigns keep a series; a zero drift removes it.
func SetLedgerDrift(campaignID string, drift int) {
	if drift == 0 {
		LedgerDrift.DeleteLabelValues(campaignID)
		return
	}
	LedgerDrift.WithLabelValues(campaignID).Set(float64(drift))
}
