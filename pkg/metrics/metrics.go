package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "serviciomed"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "registrations_total", Help: "Completed registrations by record number prefix."},
		[]string{"prefix"},
	)
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "logins_total", Help: "Login attempts by result (success, failure)."},
		[]string{"result"},
	)
	IntakeSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "intake_submissions_total", Help: "Survey, exam and upload submissions by result."},
		[]string{"step", "result"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency by route and status.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route", "status"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(Registrations)
	reg.MustRegister(Logins)
	reg.MustRegister(IntakeSubmissions)
	reg.MustRegister(HTTPRequestDuration)
}

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)
