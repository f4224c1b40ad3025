package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	turnTotal    *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	turnRounds   prometheus.Histogram
	roundLimit   prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	inferenceTotal    *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	inferenceRetries  prometheus.Counter

	activeConversations  prometheus.Gauge
	cartSessionsExpired  prometheus.Counter
	ordersPlacedTotal    prometheus.Counter
	queueSize            *prometheus.GaugeVec
	queueCompletionTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turn_total",
					Help: "Total conversation turns by outcome.",
				},
				[]string{"outcome"},
			),
			turnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "turn_duration_seconds",
					Help:    "Turn duration in seconds by outcome.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"outcome"},
			),
			turnRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "turn_rounds",
					Help:    "Inference rounds taken per turn.",
					Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
				},
			),
			roundLimit: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "turn_round_limit_total",
					Help: "Turns aborted for exceeding the round limit.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			inferenceTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inference_total",
					Help: "Total inference calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			inferenceDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "inference_duration_seconds",
					Help:    "Inference call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			inferenceRetries: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "inference_retries_total",
					Help: "Total inference retries after transient failures.",
				},
			),
			activeConversations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_conversations",
					Help: "Current open conversation count.",
				},
			),
			cartSessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "cart_sessions_expired_total",
					Help: "Cart sessions invalidated by the expiry sweep.",
				},
			),
			ordersPlacedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "orders_placed_total",
					Help: "Orders created through checkout.",
				},
			),
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			queueCompletionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "queue_completion_total",
					Help: "Total completed lane tasks by lane and status.",
				},
				[]string{"lane", "status"},
			),
		}

		prometheus.MustRegister(
			m.turnTotal,
			m.turnDuration,
			m.turnRounds,
			m.roundLimit,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.inferenceTotal,
			m.inferenceDuration,
			m.inferenceRetries,
			m.activeConversations,
			m.cartSessionsExpired,
			m.ordersPlacedTotal,
			m.queueSize,
			m.queueCompletionTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordTurn(outcome string, duration time.Duration, rounds int) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.turnRounds.Observe(float64(rounds))
}

func RecordRoundLimitExceeded() {
	getMetrics().roundLimit.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordInference(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.inferenceTotal.WithLabelValues(provider, status).Inc()
	m.inferenceDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordInferenceRetry() {
	getMetrics().inferenceRetries.Inc()
}

func SetActiveConversations(count int) {
	getMetrics().activeConversations.Set(float64(count))
}

func RecordSessionsExpired(count int) {
	getMetrics().cartSessionsExpired.Add(float64(count))
}

func RecordOrderPlaced() {
	getMetrics().ordersPlacedTotal.Inc()
}

func SetQueueSize(lane string, queueSize int) {
	getMetrics().queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.queueCompletionTotal.WithLabelValues(lane, status).Inc()
}
