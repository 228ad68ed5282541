// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the formchat server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// JudgeBuckets defines histogram buckets for judge latencies, from 50ms to
// the longest judge timeout worth configuring.
var JudgeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formchat_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// WebSocketConnections tracks open WebSocket dialogue connections.
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formchat_websocket_connections_active",
			Help: "Active WebSocket connections",
		},
	)

	// SessionsActive tracks sessions that have not reached a terminal status.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formchat_sessions_active",
			Help: "Active dialogue sessions",
		},
	)

	// SessionsStartedTotal counts sessions by form.
	SessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_sessions_started_total",
			Help: "Sessions started",
		},
		[]string{"form"},
	)

	// SessionsFinishedTotal counts sessions by form and outcome
	// (done, abandoned, timed_out).
	SessionsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_sessions_finished_total",
			Help: "Sessions finished",
		},
		[]string{"form", "outcome"},
	)

	// AttemptsTotal counts answer attempts by question type and result
	// (valid, invalid, empty, validator_error).
	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_attempts_total",
			Help: "Answer attempts",
		},
		[]string{"type", "result"},
	)

	// QuestionsUnansweredTotal counts questions that exhausted their attempts.
	QuestionsUnansweredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_questions_unanswered_total",
			Help: "Questions left unanswered after all attempts",
		},
		[]string{"form", "required"},
	)

	// JudgeRequestsTotal counts judge calls by judge kind and status
	// (success, error).
	JudgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_judge_requests_total",
			Help: "Judge requests",
		},
		[]string{"judge", "status"},
	)

	// JudgeLatency records judge latency in seconds, retries included.
	JudgeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formchat_judge_latency_seconds",
			Help:    "Judge latency",
			Buckets: JudgeBuckets,
		},
		[]string{"judge"},
	)

	// JudgeTokensTotal counts backend tokens by direction (input/output).
	JudgeTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_judge_tokens_total",
			Help: "Judge token count",
		},
		[]string{"judge", "direction"},
	)

	// PersistFailuresTotal counts submissions that could not be stored
	// after all retries.
	PersistFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formchat_persist_failures_total",
			Help: "Submission persistence failures",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		WebSocketConnections,
		SessionsActive,
		SessionsStartedTotal,
		SessionsFinishedTotal,
		AttemptsTotal,
		QuestionsUnansweredTotal,
		JudgeRequestsTotal,
		JudgeLatency,
		JudgeTokensTotal,
		PersistFailuresTotal,
	)
}
