package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "backoffice"

// Label names
const (
	LabelMethod   = "method"
	LabelPath     = "path"
	LabelStatus   = "status"
	LabelProvider = "provider"
	LabelResult   = "result"
	LabelFormType = "form_type"
	LabelDecision = "decision"
	LabelTrigger  = "trigger"
)

// Label values for result
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelMethod, LabelPath},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served",
		},
	)
)

// Sync Metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Provider sync runs by trigger and result",
		},
		[]string{LabelProvider, LabelTrigger, LabelResult},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of provider sync runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{LabelProvider},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Accounting webhook entity changes by result",
		},
		[]string{LabelResult},
	)

	CalendarMirrorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_mirror_total",
			Help:      "Clock events mirrored to the calendar by result",
		},
		[]string{LabelResult},
	)
)

// Approval Metrics
var (
	ApprovalsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_submitted_total",
			Help:      "Approval requests submitted by form type",
		},
		[]string{LabelFormType},
	)

	ApprovalsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_decided_total",
			Help:      "Approval decisions by form type and decision",
		},
		[]string{LabelFormType, LabelDecision},
	)
)
