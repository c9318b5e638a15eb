package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "INFO", Format: "json"})

	WithTaskID(logger, "t-1").Info("step done", "step", "RecoverChunk")
	logger.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["task_id"] != "t-1" || entry["step"] != "RecoverChunk" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger for empty context")
	}

	logger := NewLogger(&bytes.Buffer{}, LogConfig{})
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSubOp("recover_chunk", nil)
	m.ObserveSubOp("recover_chunk", errors.New("x"))
	m.ObserveSubOp("recover_chunk", nil)
	m.ObserveStep("RecoverChunk", time.Second, nil)
	m.ObserveRun("clone", "done")
	m.ObserveSubmit("")
	m.ObserveSubmit("queue_full")
	m.SetActive(3)

	if got := testutil.ToFloat64(m.SubOps.WithLabelValues("recover_chunk", "ok")); got != 2 {
		t.Errorf("expected 2 ok sub-ops, got %v", got)
	}
	if got := testutil.ToFloat64(m.TasksRejected.WithLabelValues("queue_full")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveTasks); got != 3 {
		t.Errorf("expected 3 active, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveRun("clone", "done")
}
