package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/busara/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewNilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNewAllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
}

func TestShutdownNil(t *testing.T) {
	// Should not panic.
	var obs *Observability
	obs.Shutdown(context.Background())
}

func TestNilSafeAccessors(t *testing.T) {
	var obs *Observability
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
	if obs.MetricsOrNil() != nil {
		t.Error("expected nil metrics from nil Observability")
	}
}

func TestNilSafeRecorders(t *testing.T) {
	// All recorders must be no-ops on nil receiver.
	var m *MetricsCollector
	m.RecordTurn("success")
	m.RecordReplan()
	m.RecordToolExecution("get_time", "success")
	m.RecordWorkItem("researcher", "completed")
	m.RecordWave(time.Second)
}

func TestMetricsRecordAndGather(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordTurn("success")
	m.RecordTurn("success")
	m.RecordTurn("failed")
	m.RecordReplan()
	m.RecordToolExecution("get_time", "success")
	m.RecordWorkItem("reviewer", "completed")
	m.RecordWave(120 * time.Millisecond)

	if got := counterValue(t, m.Registry, "busara_agent_turns_total", prometheus.Labels{"status": "success"}); got != 2 {
		t.Errorf("success turns = %v, want 2", got)
	}
	if got := counterValue(t, m.Registry, "busara_agent_turns_total", prometheus.Labels{"status": "failed"}); got != 1 {
		t.Errorf("failed turns = %v, want 1", got)
	}
	if got := counterValue(t, m.Registry, "busara_tool_executions_total", prometheus.Labels{"tool": "get_time", "status": "success"}); got != 1 {
		t.Errorf("tool executions = %v, want 1", got)
	}
	if got := counterValue(t, m.Registry, "busara_orchestrator_work_items_total", prometheus.Labels{"role": "reviewer", "status": "completed"}); got != 1 {
		t.Errorf("work items = %v, want 1", got)
	}
}

// --- Helpers ---

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
