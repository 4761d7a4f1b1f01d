// Package metrics holds the Prometheus collectors shared by the HTTP layer
// and the use cases. All collectors live on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rcm_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rcm_http_requests_in_flight",
		Help: "Requests currently being served.",
	})

	AnalysesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rcm_analyses_submitted_total",
		Help: "Analyses accepted by the gateway.",
	})

	AnalysisTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_analysis_transitions_total",
		Help: "Analysis status transitions by target status.",
	}, []string{"status"})

	TriggerDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_trigger_deliveries_total",
		Help: "Workflow trigger delivery attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	CheckpointConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_checkpoint_confirmations_total",
		Help: "Paper selections confirmed, split by whether the default was overridden.",
	}, []string{"overridden"})

	DealTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_deal_transitions_total",
		Help: "Deal status updates by target status.",
	}, []string{"status"})

	InvoicesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rcm_invoices_computed_total",
		Help: "Success-fee invoices computed.",
	})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rcm_payment_events_total",
		Help: "Payment webhook events by type.",
	}, []string{"type"})
)
