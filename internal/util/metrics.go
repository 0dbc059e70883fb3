package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrollmentsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of enrollments created",
	}, []string{"kind"})

	EnrollmentsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_paid_total",
		Help: "Total number of enrollments moved to Paid",
	})

	EnrollmentsCanceledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_canceled_total",
		Help: "Total number of enrollments moved to Canceled",
	}, []string{"reason"})

	PaymentInitiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiations_total",
		Help: "Total number of payment initiations by outcome",
	}, []string{"outcome"})

	PaymentInitiationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_initiation_latency_seconds",
		Help:    "Latency of payment initiation including gateway calls",
		Buckets: prometheus.DefBuckets,
	})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of gateway callbacks by outcome",
	}, []string{"outcome"})

	CapturesAfterCancelTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_captures_after_cancel_total",
		Help: "Successful payments received for enrollments already canceled, pending manual reconciliation",
	})

	InitiationLockErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_initiation_lock_errors_total",
		Help: "Initiations that proceeded without the lock because Redis failed",
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway steps including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"step", "outcome"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of failed payment gateway steps",
	}, []string{"step"})

	GatewayRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retried payment gateway attempts",
	}, []string{"step"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
