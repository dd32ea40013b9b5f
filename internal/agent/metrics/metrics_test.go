package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("normal", 1, time.Second)
		m.ObserveStep("decide", time.Second)
		m.ObserveTool("regulation", "ok", time.Second)
		m.ObserveLLM("gemini", nil, 1, 1, 0.1)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTool("regulation", "ok", 10*time.Millisecond)
	m.ObserveTool("regulation", "ok", 20*time.Millisecond)
	m.ObserveTool("regulation", "timeout", time.Second)
	m.ObserveRun("ceiling", 10, time.Second)
	m.ObserveLLM("gemini-2.5-flash", nil, 100, 50, 0.002)
	m.ObserveLLM("gemini-2.5-flash", errors.New("quota"), 0, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolInvocations.WithLabelValues("regulation", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolInvocations.WithLabelValues("regulation", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loopRuns.WithLabelValues("ceiling")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("gemini-2.5-flash", "input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("gemini-2.5-flash", "error")))
	assert.InDelta(t, 0.002, testutil.ToFloat64(m.llmCost.WithLabelValues("gemini-2.5-flash")), 1e-12)
}
