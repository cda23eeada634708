package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ceremony/internal/remote"
)

var (
	// ErrRefreshFailed wraps the cause of a failed Refresh. The returned
	// View still carries the last known data.
	ErrRefreshFailed = errors.New("couldn't refresh ranking")

	// ErrSuperseded is returned by a Refresh that a newer Refresh replaced
	// before it completed. Its result, if any, was discarded.
	ErrSuperseded = errors.New("refresh superseded")
)

// State is the cache's tri-state.
type State int

const (
	// StateAbsent means the cache has never been populated.
	StateAbsent State = iota
	// StateFresh means the cached data is current as far as the device knows.
	StateFresh
	// StateStale means the cached data is known or presumed out of date.
	StateStale
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "absent"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is the cached ranking data.
type Snapshot struct {
	Rank                  int `json:"rank"`
	Percentile            int `json:"percentile"`
	VerifiedCompleted     int `json:"verifiedCompleted"`
	VerifiedStreak        int `json:"verifiedStreak"`
	VerifiedLongestStreak int `json:"verifiedLongestStreak"`
}

// View is a point-in-time read of the cache.
type View struct {
	State      State     `json:"state"`
	Snapshot   Snapshot  `json:"snapshot"`
	Refreshing bool      `json:"refreshing"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Verified is a partial update from the server. Only non-nil fields are
// overlaid onto the cached snapshot.
type Verified struct {
	Rank                  *int
	Percentile            *int
	VerifiedCompleted     *int
	VerifiedStreak        *int
	VerifiedLongestStreak *int
}

// VerifiedFrom turns a full server ranking into a Verified with every field
// set.
func VerifiedFrom(r remote.Ranking) Verified {
	return Verified{
		Rank:                  &r.Rank,
		Percentile:            &r.Percentile,
		VerifiedCompleted:     &r.VerifiedCompleted,
		VerifiedStreak:        &r.VerifiedStreak,
		VerifiedLongestStreak: &r.VerifiedLongestStreak,
	}
}

// Cache is the ranking cache.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	auth       remote.Authenticator
	fetcher    remote.Fetcher
	now        func() time.Time
	staleAfter time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	snap       Snapshot
	updatedAt  time.Time
	merges     uint64 // bumped by every MergeVerified
	refreshGen uint64 // bumped by every Refresh
	refreshing bool
	cancel     context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow sets the time source. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithStaleAfter makes a Fresh entry read as Stale once it is older than d.
// Zero disables ageing. Default: zero.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) {
		c.staleAfter = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates an empty cache that refreshes through auth and fetcher.
func New(auth remote.Authenticator, fetcher remote.Fetcher, opts ...Option) *Cache {
	c := &Cache{
		auth:    auth,
		fetcher: fetcher,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "ranking")
	return c
}

// Read returns the current view. It never blocks on the network.
func (c *Cache) Read() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Cache) viewLocked() View {
	v := View{
		State:      c.state,
		Snapshot:   c.snap,
		Refreshing: c.refreshing,
		UpdatedAt:  c.updatedAt,
	}
	if v.State == StateFresh && c.staleAfter > 0 && c.now().Sub(c.updatedAt) > c.staleAfter {
		v.State = StateStale
	}
	return v
}

// MergeVerified overlays the provided verified fields and marks the entry
// Fresh. A Refresh that started before the merge is discarded when it
// completes.
func (c *Cache) MergeVerified(v Verified) {
	c.mu.Lock()
	defer c.mu.Unlock()

	overlay(&c.snap.Rank, v.Rank)
	overlay(&c.snap.Percentile, v.Percentile)
	overlay(&c.snap.VerifiedCompleted, v.VerifiedCompleted)
	overlay(&c.snap.VerifiedStreak, v.VerifiedStreak)
	overlay(&c.snap.VerifiedLongestStreak, v.VerifiedLongestStreak)

	c.state = StateFresh
	c.updatedAt = c.now()
	c.merges++
}

func overlay(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// MarkStale turns a Fresh entry Stale. An Absent cache stays Absent.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFresh {
		c.state = StateStale
	}
}

// Refresh authenticates and fetches the ranking directly, independent of the
// sync outbox.
//
// Starting a Refresh cancels any older one still in flight; the older call
// returns ErrSuperseded and its result is dropped. A result is also dropped
// if MergeVerified ran while the fetch was in flight, since the merge is
// newer. On failure Refresh returns the current view and an error wrapping
// ErrRefreshFailed.
func (c *Cache) Refresh(ctx context.Context) (View, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.refreshGen++
	gen, merges := c.refreshGen, c.merges
	c.cancel = cancel
	c.refreshing = true
	c.mu.Unlock()

	r, err := c.fetch(rctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.refreshGen {
		return c.viewLocked(), ErrSuperseded
	}
	c.refreshing = false
	c.cancel = nil

	if err != nil {
		c.logger.Warn("ranking refresh failed", "error", err)
		return c.viewLocked(), fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if merges != c.merges {
		c.logger.Debug("dropping refresh result older than verified merge")
		return c.viewLocked(), nil
	}

	c.snap = Snapshot{
		Rank:                  r.Rank,
		Percentile:            r.Percentile,
		VerifiedCompleted:     r.VerifiedCompleted,
		VerifiedStreak:        r.VerifiedStreak,
		VerifiedLongestStreak: r.VerifiedLongestStreak,
	}
	c.state = StateFresh
	c.updatedAt = c.now()
	return c.viewLocked(), nil
}

func (c *Cache) fetch(ctx context.Context) (remote.Ranking, error) {
	sess, err := c.auth.Authenticate(ctx)
	if err != nil {
		return remote.Ranking{}, fmt.Errorf("authenticate: %w", err)
	}
	r, err := c.fetcher.FetchRanking(ctx, sess)
	if err != nil {
		return remote.Ranking{}, fmt.Errorf("fetch ranking: %w", err)
	}
	return r, nil
}
