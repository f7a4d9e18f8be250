package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"warn", "warn", slog.LevelWarn},
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"warn filters info", "warn", false, false},
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("solve finished")
			if got := strings.Contains(buf.String(), "solve finished"); got != tt.logAtDebug {
				t.Errorf("debug visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("sweep started")
			if got := strings.Contains(buf.String(), "sweep started"); got != tt.logAtInfo {
				t.Errorf("info visible = %v, want %v (buf: %q)", got, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "iteration")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewTrialLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "info")
	if tl != nil {
		t.Error("expected nil TrialLogger at info level")
	}

	// Nil logger is still usable.
	tl.Trial(TrialEvent{Signal: 1})
	tl.Sweep(SweepEvent{Trials: 1})
	tl.Close()

	if _, err := os.Stat(filepath.Join(dir, "trials.jsonl")); err == nil {
		t.Error("trials.jsonl should not exist at info level")
	}
}

// readEvents is a test helper that decodes every line of trials.jsonl.
func readEvents(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "trials.jsonl"))
	if err != nil {
		t.Fatalf("reading trials.jsonl: %v", err)
	}
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("parsing %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestTrialLogger_WritesJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	tl := NewTrialLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected TrialLogger at debug level")
	}

	tl.Trial(TrialEvent{Signal: 2, Eps: 0.01, Distance: 0.25, AttackedTrace: []float64{3, 2}})
	tl.Sweep(SweepEvent{Signals: 1, Budgets: 1, Trials: 1, Seed: 7})
	tl.Close()

	events := readEvents(t, dir)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	trial := events[0]
	if trial["kind"] != KindTrial || trial["eps"] != 0.01 || trial["distance"] != 0.25 || trial["signal"] != float64(2) {
		t.Errorf("trial event = %v", trial)
	}
	if _, ok := trial["time"]; !ok {
		t.Error("expected time field")
	}
	if _, ok := trial["attacked_trace"]; ok {
		t.Error("residual trace should be dropped at debug level")
	}
	if events[1]["kind"] != KindSweep || events[1]["seed"] != float64(7) {
		t.Errorf("sweep event = %v", events[1])
	}

	info, err := os.Stat(filepath.Join(dir, "trials.jsonl"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestTrialLogger_TraceKeepsResiduals(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "trace")
	tl.Trial(TrialEvent{Signal: 0, AttackedTrace: []float64{4, 1}})
	tl.Close()

	events := readEvents(t, dir)
	trace, ok := events[0]["attacked_trace"].([]any)
	if !ok || len(trace) != 2 || trace[0] != float64(4) {
		t.Errorf("attacked_trace = %v, want [4 1]", events[0]["attacked_trace"])
	}
}

func TestTrialLogger_ConcurrentTrials(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "debug")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Trial(TrialEvent{Signal: i})
		}()
	}
	wg.Wait()
	tl.Close()

	if got := len(readEvents(t, dir)); got != 8 {
		t.Errorf("events = %d, want 8", got)
	}
}

func TestTrialLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	tl := NewTrialLogger(dir, "trace")
	tl.Trial(TrialEvent{Signal: 1})
	tl.Close()
	tl.Trial(TrialEvent{Signal: 2})
	tl.Close()

	if got := len(readEvents(t, dir)); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}
