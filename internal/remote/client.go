package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshSkew is how long before expiry a memoized token is replaced.
	DefaultRefreshSkew = 30 * time.Second

	// DefaultLoginTimeout bounds one shared login request.
	DefaultLoginTimeout = 30 * time.Second
)

// Client talks to the sync server over HTTP. It implements Authenticator,
// Submitter and Fetcher.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	baseURL  string
	deviceID string
	secret   string
	http     *http.Client
	logger   *slog.Logger
	now      func() time.Time
	skew     time.Duration
	loginTTL time.Duration

	logins singleflight.Group

	mu      sync.Mutex
	session Session
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Default: a client without
// a timeout; callers bound requests with their context.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// WithClientLogger sets the logger. Default: slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithNow sets the time source used for token expiry checks.
func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithRefreshSkew sets how long before expiry a token is replaced.
func WithRefreshSkew(d time.Duration) ClientOption {
	return func(c *Client) {
		c.skew = d
	}
}

// WithLoginTimeout bounds each login request. Logins are shared between
// callers and outlive any one caller's context, so they carry their own
// deadline. Default: DefaultLoginTimeout.
func WithLoginTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.loginTTL = d
	}
}

// NewClient creates a client for the server at baseURL, authenticating as
// deviceID with secret.
func NewClient(baseURL, deviceID, secret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		secret:   secret,
		http:     &http.Client{},
		logger:   slog.Default(),
		now:      time.Now,
		skew:     DefaultRefreshSkew,
		loginTTL: DefaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c
}

// Authenticate returns the memoized session if it is still valid, otherwise
// logs in. Concurrent callers share one login request.
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	if s, ok := c.cached(); ok {
		return s, nil
	}

	ch := c.logins.DoChan("login", func() (any, error) {
		if s, ok := c.cached(); ok {
			return s, nil
		}
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loginTTL)
		defer cancel()
		s, err := c.login(loginCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.session = s
		c.mu.Unlock()
		c.logger.Debug("authenticated", "device", c.deviceID, "expires_at", s.ExpiresAt)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	}
}

// Invalidate drops the memoized session so the next Authenticate logs in.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = Session{}
}

func (c *Client) cached() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Token == "" {
		return Session{}, false
	}
	if !c.now().Add(c.skew).Before(c.session.ExpiresAt) {
		return Session{}, false
	}
	return c.session, true
}

func (c *Client) login(ctx context.Context) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/auth/device", "", AuthRequest{
		DeviceID: c.deviceID,
		Secret:   c.secret,
	}, &s)
	if err != nil {
		return Session{}, err
	}
	if s.Token == "" {
		return Session{}, &Error{Code: CodeServer, Message: "empty token in auth response", Status: http.StatusOK}
	}

	// The token's own exp claim wins over the advertised expiry. The client
	// cannot verify the signature and does not need to.
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err == nil && claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Submit posts a snapshot and returns the server's ranking.
func (c *Client) Submit(ctx context.Context, sess Session, snap StatSnapshot) (Ranking, error) {
	var r Ranking
	if err := c.do(ctx, http.MethodPost, "/api/stats", sess.Token, snap, &r); err != nil {
		c.dropOnUnauthorized(err)
		return Ranking{}, err
	}
	return r, nil
}

// FetchRanking reads the device's current ranking.
func (c *Client) FetchRanking(ctx context.Context, sess Session) (Ranking, error) {
	var r Ranking
	if err := c.do(ctx, http.MethodGet, "/api/ranking", sess.Token, nil, &r); err != nil {
		c.dropOnUnauthorized(err)
		return Ranking{}, err
	}
	return r, nil
}

func (c *Client) dropOnUnauthorized(err error) {
	if IsUnauthorized(err) {
		c.Invalidate()
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportError("read "+path, err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Code:    CodeServer,
			Message: "malformed response body",
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

func decodeError(status int, data []byte) *Error {
	e := &Error{
		Status:    status,
		Transient: status >= 500 || status == http.StatusTooManyRequests,
	}

	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Code != "" {
		e.Code = body.Error.Code
		e.Message = body.Error.Message
		return e
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Code = CodeUnauthorized
	case status == http.StatusNotFound:
		e.Code = CodeNotFound
	case status >= 500:
		e.Code = CodeServer
	default:
		e.Code = CodeInvalidRequest
	}
	e.Message = http.StatusText(status)
	return e
}

var (
	_ Authenticator = (*Client)(nil)
	_ Submitter     = (*Client)(nil)
	_ Fetcher       = (*Client)(nil)
)
