package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/persist"
	"github.com/roach88/ceremony/internal/remote"
)

// DefaultTokenTTL is the lifetime of an issued device token.
const DefaultTokenTTL = 24 * time.Hour

// minSecretLen is the shortest accepted device secret.
const minSecretLen = 8

// Server holds device registrations and per-device stat state in a
// key-value store.
//
// Thread-safety: all handlers are safe for concurrent use; read-modify-write
// sequences are serialized by an internal mutex.
type Server struct {
	kv        persist.Storage
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued tokens. Default: DefaultTokenTTL.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// WithNow sets the time source. Default: time.Now.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a server storing its state in kv and signing tokens with
// jwtSecret.
func New(kv persist.Storage, jwtSecret string, opts ...Option) (*Server, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &Server{
		kv:        kv,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  DefaultTokenTTL,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s, nil
}

// device is the stored registration of a device.
type device struct {
	SecretHash   string    `json:"secretHash"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// deviceStats is the last applied snapshot of a device.
type deviceStats struct {
	LastSeq    int64          `json:"lastSeq"`
	LastDigest string         `json:"lastDigest"`
	Ranking    remote.Ranking `json:"ranking"`
}

func deviceKey(id string) string { return "device/" + id }
func statsKey(id string) string  { return "stats/" + id }

func (s *Server) load(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Server) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, data)
}

// AuthenticateDevice registers deviceID on first use and issues a token.
func (s *Server) AuthenticateDevice(ctx context.Context, deviceID, secret string) (remote.Session, *APIError) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return remote.Session{}, badRequest(remote.CodeInvalidRequest, "deviceId is required")
	}
	if len(secret) < minSecretLen {
		return remote.Session{}, badRequest(remote.CodeInvalidRequest, fmt.Sprintf("secret must be at least %d characters", minSecretLen))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var dev device
	found, err := s.load(ctx, deviceKey(deviceID), &dev)
	if err != nil {
		s.logger.Error("loading device", "device", deviceID, "error", err)
		return remote.Session{}, internal("failed to query device")
	}

	if !found {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return remote.Session{}, internal("failed to secure secret")
		}
		dev = device{SecretHash: string(hash), RegisteredAt: s.now().UTC()}
		if err := s.save(ctx, deviceKey(deviceID), dev); err != nil {
			s.logger.Error("registering device", "device", deviceID, "error", err)
			return remote.Session{}, internal("failed to register device")
		}
		s.logger.Info("device registered", "device", deviceID)
	} else if bcrypt.CompareHashAndPassword([]byte(dev.SecretHash), []byte(secret)) != nil {
		return remote.Session{}, unauthorized("invalid device credentials")
	}

	return s.issueToken(deviceID)
}

func (s *Server) issueToken(deviceID string) (remote.Session, *APIError) {
	now := s.now().UTC()
	exp := now.Add(s.tokenTTL).Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return remote.Session{}, internal("failed to sign token")
	}
	return remote.Session{Token: signed, ExpiresAt: exp}, nil
}

// ParseToken validates a bearer token and returns its device ID.
func (s *Server) ParseToken(tokenString string) (string, *APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", unauthorized("invalid token")
	}
	return claims.Subject, nil
}

// SubmitStats applies snap for deviceID and returns the resulting ranking.
func (s *Server) SubmitStats(ctx context.Context, deviceID string, snap remote.StatSnapshot) (remote.Ranking, *APIError) {
	if apiErr := validateSnapshot(snap); apiErr != nil {
		return remote.Ranking{}, apiErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var st deviceStats
	found, err := s.load(ctx, statsKey(deviceID), &st)
	if err != nil {
		s.logger.Error("loading stats", "device", deviceID, "error", err)
		return remote.Ranking{}, internal("failed to query stats")
	}

	if found && (snap.Digest == st.LastDigest || snap.Seq <= st.LastSeq) {
		s.logger.Debug("snapshot already applied",
			"device", deviceID,
			"seq", snap.Seq,
			"last_seq", st.LastSeq,
		)
		return st.Ranking, nil
	}

	r := ledger.RankFor(snap.CompletedCeremonies)
	st = deviceStats{
		LastSeq:    snap.Seq,
		LastDigest: snap.Digest,
		Ranking: remote.Ranking{
			Rank:                  r.Rank,
			Percentile:            r.Percentile,
			VerifiedCompleted:     snap.CompletedCeremonies,
			VerifiedStreak:        snap.CurrentStreak,
			VerifiedLongestStreak: snap.LongestStreak,
			UpdatedAt:             s.now().UTC(),
		},
	}
	if err := s.save(ctx, statsKey(deviceID), st); err != nil {
		s.logger.Error("saving stats", "device", deviceID, "error", err)
		return remote.Ranking{}, internal("failed to save stats")
	}

	s.logger.Info("snapshot applied",
		"device", deviceID,
		"seq", snap.Seq,
		"completed", snap.CompletedCeremonies,
		"rank", r.Rank,
	)
	return st.Ranking, nil
}

func validateSnapshot(snap remote.StatSnapshot) *APIError {
	switch {
	case snap.Seq <= 0:
		return badRequest(remote.CodeInvalidRequest, "seq must be positive")
	case snap.TotalCeremonies < 0, snap.CompletedCeremonies < 0, snap.CurrentStreak < 0, snap.LongestStreak < 0:
		return badRequest(remote.CodeInvalidRequest, "counters must not be negative")
	case snap.CompletedCeremonies > snap.TotalCeremonies:
		return badRequest(remote.CodeInvalidRequest, "completedCeremonies exceeds totalCeremonies")
	case snap.CurrentStreak > snap.LongestStreak:
		return badRequest(remote.CodeInvalidRequest, "currentStreak exceeds longestStreak")
	case !snap.LastCeremonyDate.IsZero() && !snap.LastCeremonyDate.Valid():
		return badRequest(remote.CodeInvalidRequest, "lastCeremonyDate must be YYYY-MM-DD")
	case !snap.VerifyDigest():
		return badRequest(remote.CodeInvalidDigest, "digest does not match snapshot")
	}
	return nil
}

// Ranking returns the last ranking computed for deviceID.
func (s *Server) Ranking(ctx context.Context, deviceID string) (remote.Ranking, *APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st deviceStats
	found, err := s.load(ctx, statsKey(deviceID), &st)
	if err != nil {
		s.logger.Error("loading stats", "device", deviceID, "error", err)
		return remote.Ranking{}, internal("failed to query stats")
	}
	if !found {
		return remote.Ranking{}, notFound("no ranking yet")
	}
	return st.Ranking, nil
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
