// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "recognitions_total",
		Help:      "Recognize-and-record attempts by outcome.",
	}, []string{"outcome"})

	recordsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "records_created_total",
		Help:      "Attendance records written, by subject.",
	}, []string{"subject"})

	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "face_gateway_duration_seconds",
		Help:      "Latency of calls to the face-match service.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op", "result"})

	registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "registrations_total",
		Help:      "Identity registrations by role and outcome.",
	}, []string{"role", "outcome"})
)

// Outcome labels for recognitions_total.
const (
	OutcomeRecorded           = "recorded"
	OutcomeNoMatch            = "no_match"
	OutcomeUnknownIdentity    = "unknown_identity"
	OutcomeRecognitionFailed  = "recognition_failed"
	OutcomeServiceUnavailable = "service_unavailable"
	OutcomeError              = "error"
)

// Recognition counts one recognize-and-record attempt.
func Recognition(outcome string) {
	recognitions.WithLabelValues(outcome).Inc()
}

// RecordCreated counts one persisted attendance record.
func RecordCreated(subject string) {
	recordsCreated.WithLabelValues(subject).Inc()
}

// GatewayCall observes the latency of one face-service call.
func GatewayCall(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// Registration counts one registration attempt.
func Registration(role string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	registrations.WithLabelValues(role, outcome).Inc()
}
