// Package metrics exposes Prometheus instrumentation for the conversation
// engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "leadflow"
	subsystem = "conversation"
)

// Metrics holds the collectors used by the engine and booking flow.
type Metrics struct {
	llmLatency   *prometheus.HistogramVec
	llmTokens    *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	bookings     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 30, 60},
		}, []string{"provider", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "llm_tokens_total",
			Help:      "Tokens used by the LLM",
		}, []string{"provider", "type"}), // type: input, output
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_calls_total",
			Help:      "Capture tool calls by result",
		}, []string{"tool", "result"}), // result: advanced, retry, error
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_transitions_total",
			Help:      "Stage transitions applied to sessions",
		}, []string{"from", "to"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Inbound messages handled, by outcome",
		}, []string{"outcome"}), // outcome: reply, booked, error
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Wall time to answer one inbound message",
			Buckets:   prometheus.DefBuckets,
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Meeting booking attempts by result",
		}, []string{"result"}), // result: ok, error
	}
	if reg != nil {
		reg.MustRegister(m.llmLatency, m.llmTokens, m.toolCalls, m.transitions, m.turns, m.turnDuration, m.bookings)
	}
	return m
}

// ObserveLLM records one completion call.
func (m *Metrics) ObserveLLM(provider string, d time.Duration, err error, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmLatency.WithLabelValues(provider, status).Observe(d.Seconds())
	if promptTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "output").Add(float64(completionTokens))
	}
}

// ToolCall records a dispatched tool call.
func (m *Metrics) ToolCall(tool, result string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, result).Inc()
}

// Transition records a stage change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Turn records a handled inbound message.
func (m *Metrics) Turn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// Booking records a booking attempt.
func (m *Metrics) Booking(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.bookings.WithLabelValues(result).Inc()
}

// Handler serves the collectors of g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
