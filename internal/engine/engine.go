package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/outbox"
	"github.com/roach88/ceremony/internal/persist"
	"github.com/roach88/ceremony/internal/ranking"
	"github.com/roach88/ceremony/internal/remote"
)

// DefaultRetryInterval is how often Run re-triggers a non-empty outbox.
const DefaultRetryInterval = time.Minute

// Engine is the ceremony progress and sync service.
//
// Thread-safety model:
//   - Commands and queries: safe from any goroutine.
//   - Run: call from exactly one goroutine.
//
// INVARIANTS:
//   - The ledger is mutated only through Engine commands (single writer).
//   - Every ledger mutation enqueues exactly one snapshot.
//   - At most one outbox submission is in flight.
type Engine struct {
	gate   *persist.Gate
	ledger *ledger.Ledger
	outbox *outbox.Outbox
	cache  *ranking.Cache

	clock      ledger.Clock
	ids        ledger.IDGenerator
	logger     *slog.Logger
	key        string
	timeout    time.Duration
	retryEvery time.Duration
	staleAfter time.Duration
	weekStart  time.Weekday

	hydrateMu sync.Mutex
	hydrated  atomic.Bool
	ready     chan struct{} // closed once commands are accepted
	closed    atomic.Bool
	done      chan struct{} // closed by Close

	// saveMu orders persistAsync's closed check and saves.Add against Close.
	saveMu sync.Mutex
	saves  sync.WaitGroup // async saves in flight
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock. Default: the system clock in time.Local.
func WithClock(c ledger.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the generator for log and snapshot IDs.
// Default: UUIDv7.
func WithIDGenerator(g ledger.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStoreKey sets the storage key. Default: DefaultStoreKey.
func WithStoreKey(key string) Option {
	return func(e *Engine) {
		e.key = key
	}
}

// WithSyncTimeout bounds each outbox submission. Default: 30s.
func WithSyncTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRetryInterval sets how often Run retries a stuck outbox.
// Default: DefaultRetryInterval. Zero or negative disables the ticker.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.retryEvery = d
	}
}

// WithStaleAfter ages cached rankings into Stale after d. Default: never.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		e.staleAfter = d
	}
}

// WithWeekStart sets the first day of the week for ThisWeekCount.
func WithWeekStart(d time.Weekday) Option {
	return func(e *Engine) {
		e.weekStart = d
	}
}

// New creates an engine over storage, syncing through auth, submitter and
// fetcher. Call Hydrate before issuing commands.
func New(
	storage persist.Storage,
	auth remote.Authenticator,
	submitter remote.Submitter,
	fetcher remote.Fetcher,
	opts ...Option,
) *Engine {
	e := &Engine{
		clock:      ledger.SystemClock{},
		ids:        ledger.UUIDv7Generator{},
		logger:     slog.Default(),
		key:        DefaultStoreKey,
		timeout:    outbox.DefaultTimeout,
		retryEvery: DefaultRetryInterval,
		weekStart:  time.Sunday,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.clock.Now
	e.gate = persist.New(storage, persist.WithLogger(e.logger))
	e.cache = ranking.New(auth, fetcher,
		ranking.WithNow(now),
		ranking.WithStaleAfter(e.staleAfter),
		ranking.WithLogger(e.logger),
	)
	e.outbox = outbox.New(auth, submitter, e.cache,
		outbox.WithNow(now),
		outbox.WithTimeout(e.timeout),
		outbox.WithLogger(e.logger),
		outbox.WithOnChange(e.persistAsync),
	)
	e.ledger = ledger.New(
		ledger.WithClock(e.clock),
		ledger.WithIDGenerator(e.ids),
		ledger.WithWeekStart(e.weekStart),
		ledger.WithOnChange(e.onLedgerChange),
	)
	e.logger = e.logger.With("component", "engine")
	return e
}

// Hydrate loads the persisted record and restores the ledger and outbox.
// It is a no-op once the engine is hydrated.
//
// A missing, unreadable or corrupt record yields fresh state. Hydrate only
// fails if ctx ends first.
func (e *Engine) Hydrate(ctx context.Context) error {
	e.hydrateMu.Lock()
	defer e.hydrateMu.Unlock()
	if e.hydrated.Load() {
		return nil
	}

	loaded, err := e.gate.Hydrate(ctx, e.key)
	if err != nil {
		return fmt.Errorf("hydrate engine: %w", err)
	}

	var rec persistedRecord
	if data, ok := loaded[e.key]; ok {
		if err := json.Unmarshal(data, &rec); err != nil {
			e.logger.Warn("persisted record is corrupt; starting fresh", "key", e.key, "error", err)
			rec = persistedRecord{}
		}
	}

	e.ledger.Restore(rec.Record)
	e.outbox.ResumeSeq(rec.SyncSeq)
	e.outbox.Restore(rec.PendingStats)
	e.hydrated.Store(true)
	close(e.ready)

	stats := e.ledger.Stats()
	e.logger.Info("engine hydrated",
		"logs", stats.TotalCeremonies,
		"streak", stats.CurrentStreak,
		"pending", e.outbox.Len(),
	)
	return nil
}

// Hydrated reports whether Hydrate has completed.
func (e *Engine) Hydrated() bool {
	return e.hydrated.Load()
}

// Ready is closed once hydration completes and commands are accepted.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

func (e *Engine) checkCommand() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.hydrated.Load() {
		return ErrHydrating
	}
	return nil
}

// RecordCeremony records an attempt that ended now.
func (e *Engine) RecordCeremony(durationSeconds int, completed bool) (ledger.CeremonyLog, error) {
	if err := e.checkCommand(); err != nil {
		return ledger.CeremonyLog{}, err
	}
	return e.ledger.RecordCeremony(durationSeconds, completed), nil
}

// MarkActive flags whether a ceremony is in progress.
func (e *Engine) MarkActive(active bool) error {
	if err := e.checkCommand(); err != nil {
		return err
	}
	e.ledger.MarkActive(active)
	return nil
}

// StopAndLogIncomplete records the active ceremony as abandoned.
// The bool is false if no ceremony was active.
func (e *Engine) StopAndLogIncomplete() (ledger.CeremonyLog, bool, error) {
	if err := e.checkCommand(); err != nil {
		return ledger.CeremonyLog{}, false, err
	}
	log, ok := e.ledger.StopAndLogIncomplete()
	return log, ok, nil
}

// onLedgerChange runs inside the ledger's command serialization, so
// snapshots are enqueued in mutation order.
func (e *Engine) onLedgerChange(c ledger.Change) {
	// Stale first: an acknowledgment for this very snapshot may land as
	// soon as it is enqueued.
	e.cache.MarkStale()

	snap, err := remote.NewSnapshot(e.ids.Generate(), 0, c.Stats, c.Log.CompletedAt)
	if err != nil {
		e.logger.Error("building sync snapshot", "log", c.Log.ID, "error", err)
	} else {
		item := e.outbox.Enqueue(snap)
		e.logger.Debug("ceremony recorded",
			"log", c.Log.ID,
			"completed", c.Log.Completed,
			"streak", c.Stats.CurrentStreak,
			"seq", item.Seq,
		)
	}
	e.persistAsync()
}

// Stats returns the aggregate counters as of now.
func (e *Engine) Stats() ledger.Stats { return e.ledger.Stats() }

// CurrentStreak returns the streak as of today.
func (e *Engine) CurrentStreak() int { return e.ledger.CurrentStreak() }

// MonthlyCount returns completed ceremonies this calendar month.
func (e *Engine) MonthlyCount() int { return e.ledger.MonthlyCount() }

// ThisWeekCount returns completed ceremonies this week.
func (e *Engine) ThisWeekCount() int { return e.ledger.ThisWeekCount() }

// TodayCompletedCount returns completed ceremonies today.
func (e *Engine) TodayCompletedCount() int { return e.ledger.TodayCompletedCount() }

// TodayIncompleteCount returns abandoned attempts today.
func (e *Engine) TodayIncompleteCount() int { return e.ledger.TodayIncompleteCount() }

// RecentLogs returns up to limit logs, newest first.
func (e *Engine) RecentLogs(limit int) []ledger.CeremonyLog { return e.ledger.RecentLogs(limit) }

// Active reports whether a ceremony is in progress and when it started.
func (e *Engine) Active() (bool, time.Time) { return e.ledger.Active() }

// LocalRanking returns the approximate rank computed on the device.
func (e *Engine) LocalRanking() ledger.Rank { return e.ledger.Ranking() }

// Ranking returns the cached server ranking without blocking.
func (e *Engine) Ranking() ranking.View { return e.cache.Read() }

// RefreshRanking fetches the ranking directly. On failure the returned view
// still holds the last known data and the error wraps
// ranking.ErrRefreshFailed.
func (e *Engine) RefreshRanking(ctx context.Context) (ranking.View, error) {
	return e.cache.Refresh(ctx)
}

// PendingSync returns the queued snapshots, head first.
func (e *Engine) PendingSync() []outbox.Item { return e.outbox.Items() }

// Foreground nudges the outbox, for example when the app becomes active.
func (e *Engine) Foreground() {
	e.outbox.Trigger()
}

// Run starts the outbox worker and the retry ticker. It blocks until ctx is
// cancelled or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-e.Ready():
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	e.logger.Info("engine starting", "retry_interval", e.retryEvery)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.outbox.Run(gctx)
	})
	if e.retryEvery > 0 {
		g.Go(func() error {
			return e.retryLoop(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		e.logger.Info("engine stopping: context cancelled")
	}
	return err
}

func (e *Engine) retryLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.retryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		case <-ticker.C:
			if n := e.outbox.Len(); n > 0 {
				e.logger.Debug("retrying pending sync", "queued", n)
				e.outbox.Trigger()
			}
		}
	}
}

// Flush submits every queued snapshot now and persists the result. It
// returns the first submission error, leaving the failed item queued.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.checkCommand(); err != nil {
		return err
	}
	drainErr := e.outbox.Drain(ctx)
	if err := e.Persist(ctx); err != nil {
		return errors.Join(drainErr, err)
	}
	if drainErr != nil {
		return fmt.Errorf("flush: %w", drainErr)
	}
	return nil
}

// Persist saves the current state synchronously.
func (e *Engine) Persist(ctx context.Context) error {
	err := e.gate.SaveFunc(ctx, e.key, e.encode)
	if err != nil && !errors.Is(err, persist.ErrSuperseded) {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// persistAsync schedules a save of the current state. A failed save is
// logged; the next mutation saves again.
func (e *Engine) persistAsync() {
	e.saveMu.Lock()
	if !e.hydrated.Load() || e.closed.Load() {
		e.saveMu.Unlock()
		return
	}
	e.saves.Add(1)
	e.saveMu.Unlock()
	go func() {
		defer e.saves.Done()
		if err := e.Persist(context.Background()); err != nil {
			e.logger.Warn("save failed; next mutation will retry", "key", e.key, "error", err)
		}
	}()
}

func (e *Engine) encode() ([]byte, error) {
	items := e.outbox.Items()
	if items == nil {
		items = []outbox.Item{}
	}
	return json.Marshal(persistedRecord{
		Record:       e.ledger.Record(),
		PendingStats: items,
		SyncSeq:      e.outbox.Seq(),
	})
}

// Close stops the outbox, waits for background saves and writes the final
// state. Commands issued after Close return ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.saveMu.Lock()
	first := e.closed.CompareAndSwap(false, true)
	e.saveMu.Unlock()
	if !first {
		return nil
	}
	close(e.done)
	e.outbox.Close()
	e.saves.Wait()
	if !e.hydrated.Load() {
		return nil
	}
	return e.Persist(ctx)
}
