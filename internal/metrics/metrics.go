package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chauffeur"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	estimates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Price estimates by mode and airport.",
		},
		[]string{"mode", "airport"},
	)

	formSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_steps_total",
			Help:      "Wizard transitions by form, action and result.",
		},
		[]string{"form", "action", "result"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Form submissions by form and result.",
		},
		[]string{"form", "result"},
	)

	autocomplete = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autocomplete_lookups_total",
			Help:      "Address lookups by outcome.",
		},
		[]string{"outcome"},
	)

	dispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_deliveries_total",
			Help:      "Dispatch sink deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Office bot commands by command and result.",
		},
		[]string{"command", "result"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_processing_seconds",
			Help:      "Time spent processing Telegram updates.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	deadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dead_letters_total",
			Help:      "Dispatch tasks moved to the dead-letter list.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			estimates,
			formSteps,
			submissions,
			autocomplete,
			dispatch,
			deadLetters,
			botCommands,
			botUpdateDuration,
		)
	})
}

func ObserveHTTP(route, method, status string, seconds float64) {
	httpRequests.WithLabelValues(route, method, status).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

func IncEstimate(mode, airport string) {
	if airport == "" {
		airport = "none"
	}
	estimates.WithLabelValues(mode, airport).Inc()
}

func IncFormStep(form, action, result string) {
	formSteps.WithLabelValues(form, action, result).Inc()
}

func IncSubmission(form, result string) {
	submissions.WithLabelValues(form, result).Inc()
}

// IncAutocomplete counts a lookup outcome: ok, short, superseded, degraded, closed.
func IncAutocomplete(outcome string) {
	autocomplete.WithLabelValues(outcome).Inc()
}

func IncDispatch(sink, result string) {
	dispatch.WithLabelValues(sink, result).Inc()
}

func IncDeadLetter() {
	deadLetters.Inc()
}

func IncBotCommand(command, result string) {
	botCommands.WithLabelValues(command, result).Inc()
}

func ObserveBotUpdate(seconds float64) {
	botUpdateDuration.Observe(seconds)
}
