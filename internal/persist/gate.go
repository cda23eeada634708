package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned by Save when a newer Save for the same key
// replaced it before it completed.
var ErrSuperseded = errors.New("save superseded by a newer write")

// Storage is the durable key-value medium behind the gate.
// Implemented by store.Store (SQLite) and testutil.MemoryStorage (tests).
type Storage interface {
	// Get returns the value under key; a missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Gate wraps a Storage with load deduplication, last-write-wins saves and
// startup hydration.
//
// Thread-safety: all methods are safe for concurrent use.
type Gate struct {
	storage Storage
	logger  *slog.Logger

	loads singleflight.Group

	mu     sync.Mutex
	writes map[string]*writeSlot

	hydrated  atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
}

// writeSlot tracks the save pipeline for one key.
type writeSlot struct {
	gen    uint64             // generation of the newest Save; guarded by Gate.mu
	cancel context.CancelFunc // cancels the newest Save; guarded by Gate.mu
	turn   chan struct{}      // size 1; held while a write is running
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// New creates a gate over storage.
func New(storage Storage, opts ...Option) *Gate {
	g := &Gate{
		storage: storage,
		logger:  slog.Default(),
		writes:  make(map[string]*writeSlot),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "persist")
	return g
}

type loadResult struct {
	data  []byte
	found bool
}

// Load returns the value under key. Concurrent Loads for the same key share
// one underlying read. Each caller receives its own copy of the bytes.
//
// The shared read is detached from any single caller's cancellation; a
// caller whose ctx ends stops waiting but does not abort the read for the
// others.
func (g *Gate) Load(ctx context.Context, key string) ([]byte, bool, error) {
	ch := g.loads.DoChan(key, func() (any, error) {
		data, found, err := g.storage.Get(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		return loadResult{data: data, found: found}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, fmt.Errorf("load %q: %w", key, res.Err)
		}
		lr := res.Val.(loadResult)
		if !lr.found {
			return nil, false, nil
		}
		return append([]byte(nil), lr.data...), true, nil
	}
}

// Save writes data under key with last-write-wins semantics.
//
// Starting a Save cancels the context of any in-flight Save for the same
// key. Writes for a key run one at a time; a Save that is still waiting its
// turn when a newer one arrives never reaches storage. In both cases the
// older call returns ErrSuperseded.
func (g *Gate) Save(ctx context.Context, key string, data []byte) error {
	data = append([]byte(nil), data...)
	return g.SaveFunc(ctx, key, func() ([]byte, error) { return data, nil })
}

// SaveFunc is Save with the value produced by encode once this call holds
// the write turn for key and is still the newest. Callers that persist live
// state use it so whichever write lands last carries the latest state.
func (g *Gate) SaveFunc(ctx context.Context, key string, encode func() ([]byte, error)) error {
	saveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.mu.Lock()
	slot := g.slot(key)
	if slot.cancel != nil {
		slot.cancel()
	}
	slot.gen++
	gen := slot.gen
	slot.cancel = cancel
	g.mu.Unlock()

	select {
	case slot.turn <- struct{}{}:
	case <-saveCtx.Done():
		return g.saveErr(ctx, key, gen, saveCtx.Err())
	}
	defer func() { <-slot.turn }()

	if g.generation(key) != gen {
		return ErrSuperseded
	}

	data, err := encode()
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := g.storage.Set(saveCtx, key, data); err != nil {
		return g.saveErr(ctx, key, gen, err)
	}

	g.logger.Debug("saved", "key", key, "bytes", len(data))
	return nil
}

// saveErr classifies a failed Save: superseded if a newer Save exists,
// otherwise the caller's own cancellation or the storage error.
func (g *Gate) saveErr(ctx context.Context, key string, gen uint64, err error) error {
	if g.generation(key) != gen {
		return ErrSuperseded
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("save %q: %w", key, err)
}

func (g *Gate) slot(key string) *writeSlot {
	s, ok := g.writes[key]
	if !ok {
		s = &writeSlot{turn: make(chan struct{}, 1)}
		g.writes[key] = s
	}
	return s
}

func (g *Gate) generation(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes[key].gen
}

// Hydrate loads every key concurrently and marks the gate hydrated.
//
// A key whose load fails is logged and reported as absent. Hydrate only
// fails if ctx ends first, in which case the gate stays unhydrated.
func (g *Gate) Hydrate(ctx context.Context, keys ...string) (map[string][]byte, error) {
	var mu sync.Mutex
	out := make(map[string][]byte, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, key := range keys {
		eg.Go(func() error {
			data, found, err := g.Load(egCtx, key)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.logger.Warn("initial load failed; starting fresh", "key", key, "error", err)
				return nil
			}
			if found {
				mu.Lock()
				out[key] = data
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	g.hydrated.Store(true)
	g.readyOnce.Do(func() { close(g.ready) })
	g.logger.Info("hydrated", "keys", len(keys), "found", len(out))
	return out, nil
}

// Hydrated reports whether Hydrate has completed.
func (g *Gate) Hydrated() bool {
	return g.hydrated.Load()
}

// Ready is closed once Hydrate completes.
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}
