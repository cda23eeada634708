package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_Frozen(t *testing.T) {
	start := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_AdvanceDaysKeepsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	clock := NewFakeClock(time.Date(2026, 10, 31, 23, 30, 0, 0, loc))

	clock.AdvanceDays(1)
	assert.Equal(t, time.Date(2026, 11, 1, 23, 30, 0, 0, loc), clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, time.Date(2026, 11, 2, 0, 30, 0, 0, loc), clock.Now())
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("log")
	assert.Equal(t, "log-1", gen.Generate())
	assert.Equal(t, "log-2", gen.Generate())

	assert.Equal(t, "id-1", NewSequenceGenerator("").Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("x")
	const n = 50

	var wg sync.WaitGroup
	seen := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- gen.Generate()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		require.False(t, unique[id], "duplicate id %s", id)
		unique[id] = true
	}
	assert.Len(t, unique, n)
}

func TestMemoryStorage_HoldSetsRespectsContext(t *testing.T) {
	m := NewMemoryStorage()
	release := m.HoldSets()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Set(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := m.Value("k")
	assert.False(t, ok)
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	m := NewMemoryStorage()
	buf := []byte("abc")
	require.NoError(t, m.Set(context.Background(), "k", buf))
	buf[0] = 'z'

	got, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, int64(1), m.GetCalls())
	assert.Equal(t, int64(1), m.SetCalls())
}
