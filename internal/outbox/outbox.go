package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ceremony/internal/ranking"
	"github.com/roach88/ceremony/internal/remote"
)

// DefaultTimeout bounds a single authenticate+submit round trip.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by Drain after Close.
var ErrClosed = errors.New("outbox closed")

// errDiscarded marks a result dropped by the cancellation rule.
var errDiscarded = errors.New("head changed while in flight")

// Item is one queued snapshot.
type Item struct {
	Seq        int64               `json:"seq"`
	Snapshot   remote.StatSnapshot `json:"snapshot"`
	EnqueuedAt time.Time           `json:"enqueuedAt"`
	Attempts   int                 `json:"attempts"`
}

// Merger receives verified rankings from acknowledged submissions.
// Implemented by *ranking.Cache.
type Merger interface {
	MergeVerified(ranking.Verified)
}

// Outbox is the sync outbox.
//
// Thread-safety model:
//   - Enqueue, Trigger, Clear, Restore and the queries: safe from any
//     goroutine.
//   - Run: call from exactly one goroutine. Drain may be called concurrently
//     with Run; the two take turns, so the single-flight rule still holds.
type Outbox struct {
	auth    remote.Authenticator
	submit  remote.Submitter
	merger  Merger
	clock   *Clock
	now     func() time.Time
	timeout time.Duration
	logger  *slog.Logger

	// onChange runs after the worker pops or fails an item, outside mu.
	onChange func()

	drainMu sync.Mutex // held by whichever goroutine is draining

	mu       sync.Mutex
	items    []Item
	inflight *flight
	closed   bool
	signal   chan struct{} // buffered, size 1
}

type flight struct {
	seq    int64
	cancel context.CancelFunc
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithTimeout bounds each submission. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Outbox) {
		o.timeout = d
	}
}

// WithNow sets the time source used to stamp items. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(o *Outbox) {
		o.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Outbox) {
		o.logger = l
	}
}

// WithOnChange registers a hook called after the worker acknowledges or
// fails an item. The engine uses it to persist the queue.
func WithOnChange(fn func()) Option {
	return func(o *Outbox) {
		o.onChange = fn
	}
}

// New creates an empty outbox. Acknowledged rankings are merged into merger.
func New(auth remote.Authenticator, submit remote.Submitter, merger Merger, opts ...Option) *Outbox {
	o := &Outbox{
		auth:    auth,
		submit:  submit,
		merger:  merger,
		clock:   NewClock(),
		now:     time.Now,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		items:   make([]Item, 0, 16),
		signal:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "outbox")
	return o
}

// Enqueue appends snap to the tail and wakes the worker. It does no I/O.
// The item's seq is assigned here and copied into the snapshot.
func (o *Outbox) Enqueue(snap remote.StatSnapshot) Item {
	o.mu.Lock()
	defer o.mu.Unlock()

	item := Item{
		Seq:        o.clock.Next(),
		EnqueuedAt: o.now(),
	}
	snap.Seq = item.Seq
	item.Snapshot = snap
	o.items = append(o.items, item)
	o.signalLocked()

	o.logger.Debug("enqueued", "seq", item.Seq, "queued", len(o.items))
	return item
}

// Trigger wakes the worker without changing the queue, for example when the
// app returns to the foreground or a retry tick fires.
func (o *Outbox) Trigger() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signalLocked()
}

func (o *Outbox) signalLocked() {
	if o.closed {
		return
	}
	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// Clear drops every queued item and cancels the in-flight request.
func (o *Outbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.items {
		o.items[i] = Item{}
	}
	o.items = o.items[:0]
	o.cancelStaleLocked()
}

// Restore replaces the queue with items, typically from persisted state.
// The seq clock is advanced past every restored seq. If the head changed,
// the in-flight request is cancelled.
func (o *Outbox) Restore(items []Item) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.items = append(make([]Item, 0, max(len(items), 16)), items...)
	for _, it := range items {
		o.clock.Observe(it.Seq)
	}
	o.cancelStaleLocked()
	if len(o.items) > 0 {
		o.signalLocked()
	}
}

func (o *Outbox) cancelStaleLocked() {
	if o.inflight == nil {
		return
	}
	if len(o.items) > 0 && o.items[0].Seq == o.inflight.seq {
		return
	}
	o.inflight.cancel()
}

// Items returns a copy of the queue, head first.
func (o *Outbox) Items() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Item(nil), o.items...)
}

// Len returns the number of queued items, including one in flight.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// InFlight returns the seq of the item being submitted, if any.
func (o *Outbox) InFlight() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight == nil {
		return 0, false
	}
	return o.inflight.seq, true
}

// ResumeSeq advances the seq clock to at least seq, so items enqueued after a
// restart never reuse a seq the server has already seen.
func (o *Outbox) ResumeSeq(seq int64) {
	o.clock.Observe(seq)
}

// Seq returns the last issued seq, for persistence.
func (o *Outbox) Seq() int64 {
	return o.clock.Current()
}

// Close stops the worker. Queued items are kept; Items still reports them.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	if o.inflight != nil {
		o.inflight.cancel()
	}
	close(o.signal)
}

// Run is the drain worker. Whenever it is signalled it submits queued items
// head first until the queue is empty or a submission fails. It blocks until
// ctx is cancelled or the outbox is closed.
//
// Submission errors are logged and never stop the worker.
func (o *Outbox) Run(ctx context.Context) error {
	o.logger.Info("outbox worker starting", "queued", o.Len())

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("outbox worker stopping", "reason", ctx.Err())
			return ctx.Err()
		case _, ok := <-o.signal:
			if !ok {
				o.logger.Info("outbox worker stopping", "reason", "closed")
				return nil
			}
		}

		if err := o.Drain(ctx); err != nil && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			o.logger.Warn("sync failed; will retry on next trigger", "error", err)
		}
	}
}

// Drain submits queued items until the queue is empty, a submission fails,
// or ctx ends. It returns the failure, or nil once the queue is empty.
//
// Drain is what Run does on every signal. Calling it directly is useful for
// a blocking "sync now".
func (o *Outbox) Drain(ctx context.Context) error {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, reqCtx, ok, err := o.begin(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		r, err := o.send(reqCtx, item)
		if err := o.finish(item, r, err); err != nil {
			if errors.Is(err, errDiscarded) {
				continue
			}
			return err
		}
	}
}

// begin marks the head in flight and returns it with a request context
// bounded by the timeout.
func (o *Outbox) begin(ctx context.Context) (Item, context.Context, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return Item{}, nil, false, ErrClosed
	}
	if len(o.items) == 0 {
		return Item{}, nil, false, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	o.inflight = &flight{seq: o.items[0].Seq, cancel: cancel}
	return o.items[0], reqCtx, true, nil
}

func (o *Outbox) send(ctx context.Context, item Item) (remote.Ranking, error) {
	sess, err := o.auth.Authenticate(ctx)
	if err != nil {
		return remote.Ranking{}, fmt.Errorf("authenticate: %w", err)
	}
	r, err := o.submit.Submit(ctx, sess, item.Snapshot)
	if err != nil {
		return remote.Ranking{}, fmt.Errorf("submit seq %d: %w", item.Seq, err)
	}
	return r, nil
}

// finish applies the outcome of submitting item. If item is no longer the
// head the outcome is discarded and errDiscarded is returned.
func (o *Outbox) finish(item Item, r remote.Ranking, sendErr error) error {
	o.mu.Lock()
	if o.inflight != nil {
		o.inflight.cancel()
		o.inflight = nil
	}
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if len(o.items) == 0 || o.items[0].Seq != item.Seq {
		o.mu.Unlock()
		o.logger.Debug("discarding result for superseded head", "seq", item.Seq)
		return errDiscarded
	}

	if sendErr != nil {
		o.items[0].Attempts++
		attempts := o.items[0].Attempts
		o.mu.Unlock()

		o.logger.Warn("sync attempt failed",
			"seq", item.Seq,
			"attempts", attempts,
			"transient", remote.IsTransient(sendErr),
			"error", sendErr,
		)
		o.notify()
		return sendErr
	}

	o.items[0] = Item{}
	if len(o.items) == 1 {
		o.items = o.items[:0]
	} else {
		o.items = o.items[1:]
	}
	remaining := len(o.items)
	o.mu.Unlock()

	o.merger.MergeVerified(ranking.VerifiedFrom(r))
	o.logger.Info("snapshot acknowledged",
		"seq", item.Seq,
		"rank", r.Rank,
		"percentile", r.Percentile,
		"remaining", remaining,
	)
	o.notify()
	return nil
}

func (o *Outbox) notify() {
	if o.onChange != nil {
		o.onChange()
	}
}
