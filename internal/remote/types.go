package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ceremony/internal/canonical"
	"github.com/roach88/ceremony/internal/ledger"
)

// Session is an authenticated device session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StatSnapshot is the stat payload submitted to the server after a ceremony.
//
// Digest is a domain-separated hash of the stat fields only (not ID, Seq or
// CapturedAt). The server treats it as an idempotency key.
type StatSnapshot struct {
	ID                  string     `json:"id"`
	Seq                 int64      `json:"seq"`
	TotalCeremonies     int        `json:"totalCeremonies"`
	CompletedCeremonies int        `json:"completedCeremonies"`
	CurrentStreak       int        `json:"currentStreak"`
	LongestStreak       int        `json:"longestStreak"`
	LastCeremonyDate    ledger.Day `json:"lastCeremonyDate,omitempty"`
	CapturedAt          time.Time  `json:"capturedAt"`
	Digest              string     `json:"digest"`
}

// NewSnapshot builds a digested snapshot of stats.
func NewSnapshot(id string, seq int64, stats ledger.Stats, capturedAt time.Time) (StatSnapshot, error) {
	s := StatSnapshot{
		ID:                  id,
		Seq:                 seq,
		TotalCeremonies:     stats.TotalCeremonies,
		CompletedCeremonies: stats.CompletedCeremonies,
		CurrentStreak:       stats.CurrentStreak,
		LongestStreak:       stats.LongestStreak,
		LastCeremonyDate:    stats.LastCeremonyDate,
		CapturedAt:          capturedAt.UTC(),
	}
	d, err := s.ComputeDigest()
	if err != nil {
		return StatSnapshot{}, err
	}
	s.Digest = d
	return s, nil
}

// ComputeDigest hashes the stat fields of s.
func (s StatSnapshot) ComputeDigest() (string, error) {
	d, err := canonical.Digest(canonical.DomainSnapshot, map[string]any{
		"totalCeremonies":     int64(s.TotalCeremonies),
		"completedCeremonies": int64(s.CompletedCeremonies),
		"currentStreak":       int64(s.CurrentStreak),
		"longestStreak":       int64(s.LongestStreak),
		"lastCeremonyDate":    s.LastCeremonyDate.String(),
	})
	if err != nil {
		return "", fmt.Errorf("digest snapshot: %w", err)
	}
	return d, nil
}

// VerifyDigest reports whether Digest matches the stat fields.
func (s StatSnapshot) VerifyDigest() bool {
	d, err := s.ComputeDigest()
	return err == nil && d == s.Digest
}

// Ranking is the server's verified view of a device.
type Ranking struct {
	Rank                  int       `json:"rank"`
	Percentile            int       `json:"percentile"`
	VerifiedCompleted     int       `json:"verifiedCompleted"`
	VerifiedStreak        int       `json:"verifiedStreak"`
	VerifiedLongestStreak int       `json:"verifiedLongestStreak"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Authenticator obtains a session. Implementations may memoize; calling it
// repeatedly must be safe.
type Authenticator interface {
	Authenticate(ctx context.Context) (Session, error)
}

// Submitter submits a stat snapshot and returns the resulting ranking.
type Submitter interface {
	Submit(ctx context.Context, sess Session, snap StatSnapshot) (Ranking, error)
}

// Fetcher reads the current ranking.
type Fetcher interface {
	FetchRanking(ctx context.Context, sess Session) (Ranking, error)
}

// AuthRequest is the body of POST /api/auth/device.
type AuthRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
}
