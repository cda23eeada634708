package remote_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/remote"
)

func TestNewSnapshot_DigestCoversStatsOnly(t *testing.T) {
	stats := ledger.Stats{TotalCeremonies: 3, CompletedCeremonies: 2, CurrentStreak: 2, LongestStreak: 2, LastCeremonyDate: "2026-10-19"}

	a, err := remote.NewSnapshot("a", 1, stats, now)
	require.NoError(t, err)
	b, err := remote.NewSnapshot("b", 7, stats, now.Add(1000))
	require.NoError(t, err)

	assert.Equal(t, a.Digest, b.Digest, "id, seq and capture time are not part of the digest")
	assert.Len(t, a.Digest, 64)
	assert.True(t, a.VerifyDigest())

	stats.CompletedCeremonies = 3
	c, err := remote.NewSnapshot("c", 2, stats, now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, c.Digest)
}

func TestVerifyDigest_DetectsTampering(t *testing.T) {
	snap, err := remote.NewSnapshot("a", 1, ledger.Stats{TotalCeremonies: 1, CompletedCeremonies: 1, CurrentStreak: 1, LongestStreak: 1}, now)
	require.NoError(t, err)

	snap.CompletedCeremonies = 500
	assert.False(t, snap.VerifyDigest())
}
