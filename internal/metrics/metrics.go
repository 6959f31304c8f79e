package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "donut_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Round metrics
	RoundAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_round_attempts_total",
			Help: "Round start invocations by outcome",
		},
		[]string{"status"}, // created, skipped, misconfigured, insufficient_participants, failed
	)

	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donut_matches_created_total",
			Help: "Total matches persisted",
		},
	)

	GroupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_group_failures_total",
			Help: "Per-group failures while persisting or announcing",
		},
		[]string{"stage"}, // persist, open, store_conversation, announce
	)

	UnplacedUsers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donut_unplaced_users_total",
			Help: "Active users left out of a round",
		},
	)

	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_outcomes_recorded_total",
			Help: "Match outcomes recorded",
		},
		[]string{"met_status"},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donut_reminders_sent_total",
			Help: "Did-you-meet reminders delivered",
		},
	)

	// Security metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donut_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "donut_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "donut_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)

	SlackLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "donut_slack_latency_seconds",
			Help:    "Slack Web API call latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method"},
	)
)
