// Package metrics exposes the agent's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	loopRuns        *prometheus.CounterVec
	loopIterations  prometheus.Histogram
	loopLatency     prometheus.Histogram
	stepLatency     *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
	llmCalls        *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmCost         *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		loopRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_loop_runs_total",
			Help: "Control loop runs by outcome",
		}, []string{"outcome"}),
		loopIterations: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_loop_iterations",
			Help:    "Decide/execute iterations per run",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		loopLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_loop_duration_seconds",
			Help:    "Control loop run duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		stepLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_step_duration_seconds",
			Help:    "Duration of a single loop step in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"step"}),
		toolInvocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		toolLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_tool_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_inference_total",
			Help: "Chat model calls by model and status",
		}, []string{"model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Tokens processed by model and direction",
		}, []string{"model", "direction"}),
		llmCost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Accumulated model cost in USD",
		}, []string{"model"}),
	}
}

func (m *Metrics) ObserveRun(outcome string, iterations int, d time.Duration) {
	if m == nil {
		return
	}
	m.loopRuns.WithLabelValues(outcome).Inc()
	m.loopIterations.Observe(float64(iterations))
	m.loopLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) ObserveTool(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, status).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveLLM(model string, err error, promptTokens, completionTokens int, costUSD float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmCalls.WithLabelValues(model, status).Inc()
	if promptTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		m.llmCost.WithLabelValues(model).Add(costUSD)
	}
}
