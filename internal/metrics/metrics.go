// Package metrics exposes quiz engine counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Attempt start requests by outcome",
		},
		[]string{"outcome"},
	)

	answersRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_answers_recorded_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"outcome"},
	)

	attemptsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_finalized_total",
			Help: "Completed attempts by trigger and pass result",
		},
		[]string{"trigger", "passed"},
	)

	attemptPercentage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_attempt_percentage",
			Help:    "Distribution of final attempt percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	sweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sweep_expired_total",
			Help: "Attempts auto-submitted by the expiry sweep",
		},
	)
)

func outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

// AttemptStarted counts a start request; kind is the error kind, empty on success.
func AttemptStarted(kind string) { attemptsStarted.WithLabelValues(outcome(kind)).Inc() }

func AnswerRecorded(kind string) { answersRecorded.WithLabelValues(outcome(kind)).Inc() }

func AttemptFinalized(trigger string, passed bool, percentage float64) {
	attemptsFinalized.WithLabelValues(trigger, strconv.FormatBool(passed)).Inc()
	attemptPercentage.Observe(percentage)
}

func SweepExpired(n int) { sweepExpired.Add(float64(n)) }

func ObserveHTTP(route string, status int, d time.Duration) {
	httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
