package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for completion and connector
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RunsTotal counts finished runs by outcome (succeeded, failed) and
	// error kind ("" on success).
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowdesk_runs_total",
			Help: "Finished workflow runs",
		},
		[]string{"status", "kind"},
	)

	// RunDuration records end-to-end run latency in seconds.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowdesk_run_duration_seconds",
			Help:    "Run duration",
			Buckets: LLMBuckets,
		},
		[]string{"status"},
	)

	// StepsTotal counts dispatched steps by capability and outcome.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowdesk_steps_total",
			Help: "Dispatched plan steps",
		},
		[]string{"capability", "status"},
	)

	// StepDuration records per-step latency in seconds by capability.
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowdesk_step_duration_seconds",
			Help:    "Step duration",
			Buckets: LLMBuckets,
		},
		[]string{"capability"},
	)

	// CompletionRequestsTotal counts completion-service calls by purpose
	// (plan, step, present) and outcome.
	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowdesk_completion_requests_total",
			Help: "Completion service requests",
		},
		[]string{"purpose", "status"},
	)

	// PresenterFallbacksTotal counts reports replaced by the fallback
	// acknowledgement.
	PresenterFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowdesk_presenter_fallbacks_total",
			Help: "Presenter fallbacks",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		StepsTotal,
		StepDuration,
		CompletionRequestsTotal,
		PresenterFallbacksTotal,
	)
}
