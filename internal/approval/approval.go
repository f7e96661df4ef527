// Package approval implements the pre-loop confirmation gate. Before any
// mutating iteration begins, an operator must approve the run through one of
// three channels — a filesystem marker, an environment flag, or a single
// interactive keypress — polled on a fixed interval until a timeout elapses.
package approval

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultInterval is the channel polling interval.
const DefaultInterval = 200 * time.Millisecond

// Method identifies which channel produced the decision.
type Method int

const (
	FileFlag Method = iota
	EnvVar
	Interactive
	TimeoutAuto
)

// String returns the canonical method name.
func (m Method) String() string {
	switch m {
	case FileFlag:
		return "FILE_FLAG"
	case EnvVar:
		return "ENV_VAR"
	case Interactive:
		return "INTERACTIVE"
	default:
		return "TIMEOUT_AUTO"
	}
}

// Decision is the single confirmation outcome produced per run.
type Decision struct {
	Approved bool          `json:"approved"`
	Method   Method        `json:"-"`
	Elapsed  time.Duration `json:"-"`
}

// MethodName is the JSON-friendly method string.
func (d Decision) MethodName() string {
	return d.Method.String()
}

// Gate polls the approval channels until one signals or the timeout elapses.
type Gate struct {
	markerPath  string
	envVar      string
	input       io.Reader // nil disables the interactive channel
	interval    time.Duration
	timeout     time.Duration
	autoApprove bool
}

// Options configures a Gate.
type Options struct {
	MarkerPath string
	EnvVar     string
	Input      io.Reader
	Interval   time.Duration
	Timeout    time.Duration
	// AutoApprove approves the run when the timeout elapses with no
	// explicit signal, instead of denying it.
	AutoApprove bool
}

// New builds a Gate. A zero interval falls back to DefaultInterval.
func New(opts Options) *Gate {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{
		markerPath:  opts.MarkerPath,
		envVar:      opts.EnvVar,
		input:       opts.Input,
		interval:    interval,
		timeout:     opts.Timeout,
		autoApprove: opts.AutoApprove,
	}
}

// Await blocks until a channel signals approval or denial, the timeout
// elapses, or ctx is cancelled. The first channel to signal wins. This is
// the only blocking point before the loop starts mutating state.
func (g *Gate) Await(ctx context.Context) Decision {
	start := time.Now()

	keys := g.watchKeypress()

	deadline := time.NewTimer(g.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if d, ok := g.poll(keys, start); ok {
			return d
		}
		select {
		case <-ctx.Done():
			return Decision{Approved: false, Method: TimeoutAuto, Elapsed: time.Since(start)}
		case <-deadline.C:
			return Decision{Approved: g.autoApprove, Method: TimeoutAuto, Elapsed: time.Since(start)}
		case <-ticker.C:
		}
	}
}

func (g *Gate) poll(keys <-chan rune, start time.Time) (Decision, bool) {
	if g.markerPath != "" {
		if _, err := os.Stat(g.markerPath); err == nil {
			return Decision{Approved: true, Method: FileFlag, Elapsed: time.Since(start)}, true
		}
	}
	if g.envVar != "" {
		if truthy(os.Getenv(g.envVar)) {
			return Decision{Approved: true, Method: EnvVar, Elapsed: time.Since(start)}, true
		}
	}
	select {
	case key, ok := <-keys:
		if ok {
			switch key {
			case 'y', 'Y':
				return Decision{Approved: true, Method: Interactive, Elapsed: time.Since(start)}, true
			case 'n', 'N':
				return Decision{Approved: false, Method: Interactive, Elapsed: time.Since(start)}, true
			}
		}
	default:
	}
	return Decision{}, false
}

// watchKeypress reads single keypresses from the interactive channel.
// The goroutine leaks if the reader never yields, which is acceptable for a
// process-scoped stdin reader.
func (g *Gate) watchKeypress() <-chan rune {
	if g.input == nil {
		return nil
	}
	keys := make(chan rune, 1)
	go func() {
		defer close(keys)
		r := bufio.NewReader(g.input)
		for {
			ch, _, err := r.ReadRune()
			if err != nil {
				return
			}
			if ch == '\n' || ch == '\r' || ch == ' ' {
				continue
			}
			keys <- ch
			return
		}
	}()
	return keys
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
