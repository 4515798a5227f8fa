package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "softphone_active_calls",
		Help: "Number of established calls (0 or 1, single call slot)",
	})

	SipRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softphone_sip_requests_total",
		Help: "Client-side SIP requests sent, by method",
	}, []string{"method"})

	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_registrations_total",
		Help: "Successful signaling registrations",
	})

	RegistrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_registration_failures_total",
		Help: "Failed registration or agent construction attempts",
	})

	CallsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softphone_calls_placed_total",
		Help: "Outbound calls placed, by media type",
	}, []string{"type"})

	CallsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_calls_answered_total",
		Help: "Inbound calls answered",
	})

	CallsMissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_calls_missed_total",
		Help: "Calls that ended in missed state",
	})

	OffersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_offers_rejected_total",
		Help: "Inbound offers rejected to preserve the single call slot",
	})

	MediaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_media_denials_total",
		Help: "Media acquisition failures (permission denied or no device)",
	})

	HistoryWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "softphone_history_write_errors_total",
		Help: "Non-fatal call-history persistence failures",
	})
)
