package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ceremony/internal/engine"
	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/remote"
	"github.com/roach88/ceremony/internal/testutil"
)

// errOffline is what the fake server returns while a scenario is offline.
var errOffline = &remote.Error{Code: remote.CodeTransport, Message: "network unreachable", Transient: true}

// Harness holds the collaborators of one scenario run. The storage and the
// fake server outlive engine restarts.
type Harness struct {
	storage *testutil.MemoryStorage
	remote  *testutil.FakeRemote
	clock   *testutil.FakeClock
	ids     *testutil.SequenceGenerator
	logger  *slog.Logger
	engine  *engine.Engine
}

// Run executes a scenario in isolation and returns its trace. The error is
// non-nil only if the engine itself could not be driven; failed
// expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		storage: testutil.NewMemoryStorage(),
		remote:  testutil.NewFakeRemote(),
		clock:   testutil.NewFakeClock(scenario.startTime()),
		ids:     testutil.NewSequenceGenerator("id"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := h.start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		_ = h.engine.Close(context.WithoutCancel(ctx))
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		event.Seq = i + 1
		result.Trace = append(result.Trace, event)
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, event) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Action, msg))
			}
		}
	}

	result.Acked = len(h.remote.Acked())
	if scenario.Acked != nil && *scenario.Acked != result.Acked {
		result.AddError(fmt.Sprintf("acked: want %d, got %d", *scenario.Acked, result.Acked))
	}
	return result, nil
}

func (h *Harness) start(ctx context.Context) error {
	h.engine = engine.New(h.storage, h.remote, h.remote, h.remote,
		engine.WithClock(h.clock),
		engine.WithIDGenerator(h.ids),
		engine.WithLogger(h.logger),
		engine.WithRetryInterval(0),
	)
	if err := h.engine.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	return nil
}

// execute runs one step. Flush failures are part of the trace, not errors.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	event := TraceEvent{Action: step.Action, Args: map[string]int{}}

	switch step.Action {
	case ActionRecord, ActionAbandon:
		event.Args["duration"] = step.Duration
		if _, err := h.engine.RecordCeremony(step.Duration, step.Action == ActionRecord); err != nil {
			return event, err
		}
	case ActionStart:
		if err := h.engine.MarkActive(true); err != nil {
			return event, err
		}
	case ActionStop:
		_, ok, err := h.engine.StopAndLogIncomplete()
		if err != nil {
			return event, err
		}
		if !ok {
			event.Error = "no active ceremony"
		}
	case ActionWait:
		event.Args["seconds"] = step.Seconds
		h.clock.Advance(time.Duration(step.Seconds) * time.Second)
	case ActionAdvanceDays:
		event.Args["days"] = step.Days
		h.clock.AdvanceDays(step.Days)
	case ActionOffline:
		h.remote.FailSubmits(errOffline)
	case ActionOnline:
		h.remote.FailSubmits(nil)
	case ActionFlush:
		if err := h.engine.Flush(ctx); err != nil {
			if !remote.IsTransient(err) {
				return event, err
			}
			event.Error = errorCode(err)
		}
	case ActionRestart:
		if err := h.engine.Close(ctx); err != nil {
			return event, fmt.Errorf("close: %w", err)
		}
		if err := h.start(ctx); err != nil {
			return event, err
		}
	}

	event.State = h.observe()
	return event, nil
}

func (h *Harness) observe() State {
	e := h.engine
	stats := e.Stats()
	rank := e.LocalRanking()
	view := e.Ranking()
	return State{
		Day:               ledger.DayOf(h.clock.Now()).String(),
		Total:             stats.TotalCeremonies,
		Completed:         stats.CompletedCeremonies,
		CurrentStreak:     stats.CurrentStreak,
		LongestStreak:     stats.LongestStreak,
		LastCeremonyDate:  stats.LastCeremonyDate.String(),
		Pending:           len(e.PendingSync()),
		Rank:              rank.Rank,
		Percentile:        rank.Percentile,
		Ranking:           view.State.String(),
		VerifiedCompleted: view.Snapshot.VerifiedCompleted,
	}
}

func errorCode(err error) string {
	var re *remote.Error
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "error"
}
