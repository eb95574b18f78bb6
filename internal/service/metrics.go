package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_request_actions_total",
		Help: "Admin actions applied to requests, labeled by outcome",
	}, []string{"kind", "action", "result"})

	intakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custodia_intake_requests_total",
		Help: "Deposit and withdrawal submissions, labeled by outcome",
	}, []string{"kind", "result"})

	approvalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custodia_approval_duration_seconds",
		Help:    "Latency of the approval transaction",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"kind"})
)
