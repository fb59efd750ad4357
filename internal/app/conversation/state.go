package conversation

import (
	"log/slog"
	"time"
)

// State is a step of the turn pipeline.
type State string

const (
	StateIdle                State = "Idle"
	StateHistoryLoaded       State = "HistoryLoaded"
	StateContextEnriched     State = "ContextEnriched"
	StateModelInvoked        State = "ModelInvoked"
	StatePersistedHistory    State = "PersistedHistory"
	StateSegmentsSynthesized State = "SegmentsSynthesized"
	StateResponded           State = "Responded"
	StateFailed              State = "Failed"
)

// tracker logs every transition with the time spent in the previous state.
type tracker struct {
	log   *slog.Logger
	state State
	start time.Time
	last  time.Time
}

func newTracker(log *slog.Logger) *tracker {
	now := time.Now()
	return &tracker{log: log, state: StateIdle, start: now, last: now}
}

func (t *tracker) to(next State, kv ...any) {
	now := time.Now()
	attrs := append([]any{
		"from", t.state,
		"to", next,
		"step_ms", now.Sub(t.last).Milliseconds(),
		"elapsed_ms", now.Sub(t.start).Milliseconds(),
	}, kv...)
	t.log.Info("turn state", attrs...)
	t.state = next
	t.last = now
}

func (t *tracker) fail(err error) {
	t.to(StateFailed, "error", err)
}
