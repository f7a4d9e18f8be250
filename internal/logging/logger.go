// Package logging sets up the operational slog logger and the JSONL trial
// log written during sweeps.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug. It adds residual traces to the trial log.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel accepts warn, info, debug and trace in any case. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on w that prints LevelTrace as TRACE.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// TrialEvent records one attacked reconstruction.
type TrialEvent struct {
	Kind           string    `json:"kind"`
	Time           time.Time `json:"time"`
	Signal         int       `json:"signal"`
	Eps            float64   `json:"eps"`
	Perturbation   float64   `json:"perturbation_linf"`
	Distance       float64   `json:"distance"`
	CleanIters     int       `json:"clean_iters"`
	AttackedIters  int       `json:"attacked_iters"`
	AttackedCosine float64   `json:"attacked_cosine"`

	// Residuals of the attacked solve; kept only at trace level.
	AttackedTrace []float64 `json:"attacked_trace,omitempty"`
}

// SweepEvent closes a sweep in the trial log.
type SweepEvent struct {
	Kind    string        `json:"kind"`
	Time    time.Time     `json:"time"`
	Signals int           `json:"signals"`
	Budgets int           `json:"budgets"`
	Workers int           `json:"workers"`
	Seed    uint64        `json:"seed"`
	Trials  int           `json:"trials"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Event kinds written to trials.jsonl.
const (
	KindTrial = "trial"
	KindSweep = "sweep"
)

// TrialLogger appends trial and sweep events to <dir>/trials.jsonl, one
// JSON object per line. It is safe for concurrent use, and a nil
// *TrialLogger discards everything.
type TrialLogger struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	trace bool
}

// NewTrialLogger opens dir/trials.jsonl for append when level is debug or
// trace. Otherwise, or when the file cannot be opened, it returns nil.
func NewTrialLogger(dir string, level string) *TrialLogger {
	lvl := ParseLevel(level)
	if lvl >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "trials.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TrialLogger{file: f, enc: json.NewEncoder(f), trace: lvl <= LevelTrace}
}

// Trial records ev. Time defaults to now; the residual trace is dropped
// below trace level.
func (tl *TrialLogger) Trial(ev TrialEvent) {
	if tl == nil {
		return
	}
	ev.Kind = KindTrial
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if !tl.trace {
		ev.AttackedTrace = nil
	}
	tl.write(ev)
}

// Sweep records the end of a sweep.
func (tl *TrialLogger) Sweep(ev SweepEvent) {
	if tl == nil {
		return
	}
	ev.Kind = KindSweep
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	tl.write(ev)
}

func (tl *TrialLogger) write(v any) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	_ = tl.enc.Encode(v)
}

// Close closes the log file. Later events are discarded.
func (tl *TrialLogger) Close() {
	if tl == nil {
		return
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}
