package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/remote"
)

// FakeRemote is a scripted sync collaborator implementing
// remote.Authenticator, remote.Submitter and remote.Fetcher.
//
// By default every call succeeds. Submit answers with the ranking bucket for
// the snapshot's completed count and echoes its verified fields. Tests can
// inject failures, hold calls open until released, and inspect what was
// submitted and how many submissions overlapped.
//
// Thread-safety: All methods are safe for concurrent use.
type FakeRemote struct {
	mu          sync.Mutex
	authErr     error
	submitErr   error
	fetchErr    error
	fetchResult *remote.Ranking
	submitGate  chan struct{}
	fetchGate   chan struct{}
	ignoreCtx   bool
	attempts    []remote.StatSnapshot
	acked       []remote.StatSnapshot

	auths         atomic.Int64
	fetches       atomic.Int64
	inFlight      atomic.Int64
	maxConcurrent atomic.Int64
}

// NewFakeRemote creates a remote whose calls all succeed.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{}
}

// Authenticate returns a long-lived session unless FailAuth is set.
func (f *FakeRemote) Authenticate(ctx context.Context) (remote.Session, error) {
	f.auths.Add(1)
	f.mu.Lock()
	err := f.authErr
	f.mu.Unlock()
	if err != nil {
		return remote.Session{}, err
	}
	return remote.Session{Token: "fake-token", ExpiresAt: time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

// Submit records the attempt, waits on any hold, then acknowledges.
func (f *FakeRemote) Submit(ctx context.Context, sess remote.Session, snap remote.StatSnapshot) (remote.Ranking, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxConcurrent.Load()
		if n <= m || f.maxConcurrent.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.attempts = append(f.attempts, snap)
	gate, ignore := f.submitGate, f.ignoreCtx
	f.mu.Unlock()

	if err := wait(ctx, gate, ignore); err != nil {
		return remote.Ranking{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return remote.Ranking{}, f.submitErr
	}
	f.acked = append(f.acked, snap)
	r := ledger.RankFor(snap.CompletedCeremonies)
	return remote.Ranking{
		Rank:                  r.Rank,
		Percentile:            r.Percentile,
		VerifiedCompleted:     snap.CompletedCeremonies,
		VerifiedStreak:        snap.CurrentStreak,
		VerifiedLongestStreak: snap.LongestStreak,
		UpdatedAt:             snap.CapturedAt,
	}, nil
}

// FetchRanking returns the ranking set with SetRanking.
// Without one it fails with a not_found error.
func (f *FakeRemote) FetchRanking(ctx context.Context, sess remote.Session) (remote.Ranking, error) {
	f.fetches.Add(1)

	f.mu.Lock()
	gate, ignore := f.fetchGate, f.ignoreCtx
	f.mu.Unlock()

	if err := wait(ctx, gate, ignore); err != nil {
		return remote.Ranking{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return remote.Ranking{}, f.fetchErr
	}
	if f.fetchResult == nil {
		return remote.Ranking{}, &remote.Error{Code: remote.CodeNotFound, Message: "no ranking yet", Status: 404}
	}
	return *f.fetchResult, nil
}

func wait(ctx context.Context, gate chan struct{}, ignoreCtx bool) error {
	if gate == nil {
		return nil
	}
	if ignoreCtx {
		<-gate
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailAuth makes Authenticate return err (nil clears it).
func (f *FakeRemote) FailAuth(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authErr = err
}

// FailSubmits makes Submit return err (nil clears it).
func (f *FakeRemote) FailSubmits(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// FailFetches makes FetchRanking return err (nil clears it).
func (f *FakeRemote) FailFetches(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// SetRanking sets the result of FetchRanking.
func (f *FakeRemote) SetRanking(r remote.Ranking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchResult = &r
}

// IgnoreCancel makes held calls wait for release even if their context ends,
// simulating a response that arrives after the caller gave up.
func (f *FakeRemote) IgnoreCancel(ignore bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoreCtx = ignore
}

// HoldSubmits blocks Submit calls that start before release is called.
func (f *FakeRemote) HoldSubmits() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.submitGate = gate
	f.mu.Unlock()
	return f.releaser(&f.submitGate, gate)
}

// HoldFetches blocks FetchRanking calls that start before release is called.
func (f *FakeRemote) HoldFetches() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.fetchGate = gate
	f.mu.Unlock()
	return f.releaser(&f.fetchGate, gate)
}

func (f *FakeRemote) releaser(slot *chan struct{}, gate chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if *slot == gate {
				*slot = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Attempts returns every snapshot passed to Submit, in call order.
func (f *FakeRemote) Attempts() []remote.StatSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.StatSnapshot(nil), f.attempts...)
}

// Acked returns the snapshots Submit acknowledged, in order.
func (f *FakeRemote) Acked() []remote.StatSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.StatSnapshot(nil), f.acked...)
}

// AuthCalls returns how many times Authenticate was called.
func (f *FakeRemote) AuthCalls() int64 { return f.auths.Load() }

// FetchCalls returns how many times FetchRanking was called.
func (f *FakeRemote) FetchCalls() int64 { return f.fetches.Load() }

// MaxConcurrentSubmits returns the highest number of overlapping Submit calls.
func (f *FakeRemote) MaxConcurrentSubmits() int64 { return f.maxConcurrent.Load() }
