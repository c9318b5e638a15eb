package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeRescanner struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRescanner) Rescan(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("rescan without deadline")
	}
	return 3, f.err
}

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * *", false},
		{"@every 30s", false},
		{"@hourly", false},
		{"", true},
		{"* * *", true},
		{"61 * * * *", true},
		{"@every nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)

	next, err := NextRun("*/15 * * * *", from)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	next, err = NextRun("@every 90s", from)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if !next.Equal(from.Add(90 * time.Second)) {
		t.Errorf("next = %v, want %v", next, from.Add(90*time.Second))
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	if _, err := New(Config{Target: &fakeRescanner{}, Spec: "bogus"}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestNew_DefaultSpec(t *testing.T) {
	s, err := New(Config{Target: &fakeRescanner{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.spec != DefaultSpec {
		t.Errorf("spec = %q, want %q", s.spec, DefaultSpec)
	}
}

func TestTick(t *testing.T) {
	target := &fakeRescanner{}
	s, err := New(Config{Target: target, Logger: discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if target.calls.Load() != 1 {
		t.Errorf("expected one rescan, got %d", target.calls.Load())
	}
	if s.LastRun().IsZero() {
		t.Error("LastRun should be set")
	}

	target.err = errors.New("db down")
	if err := s.Tick(context.Background()); err == nil {
		t.Error("expected rescan error")
	}
}

func TestStartStop(t *testing.T) {
	target := &fakeRescanner{}
	s, err := New(Config{Target: target, Spec: "@every 1s", Logger: discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.Now().Add(3 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	s.Stop()

	if target.calls.Load() == 0 {
		t.Fatal("scheduled rescan did not run")
	}

	// Повторный Stop безопасен.
	s.Stop()
}
