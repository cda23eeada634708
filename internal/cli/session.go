package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/config"
	"github.com/roach88/ceremony/internal/engine"
	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/remote"
	"github.com/roach88/ceremony/internal/store"
)

// errOffline is returned by the sync collaborators when no server is
// configured. It is transient so queued snapshots are kept.
var errOffline = &remote.Error{
	Code:      remote.CodeTransport,
	Message:   "no sync server configured",
	Transient: true,
}

// offline stands in for the sync client when no server is configured.
type offline struct{}

func (offline) Authenticate(context.Context) (remote.Session, error) {
	return remote.Session{}, errOffline
}

func (offline) Submit(context.Context, remote.Session, remote.StatSnapshot) (remote.Ranking, error) {
	return remote.Ranking{}, errOffline
}

func (offline) FetchRanking(context.Context, remote.Session) (remote.Ranking, error) {
	return remote.Ranking{}, errOffline
}

// session is one command's view of the device: config, database and a
// hydrated engine.
type session struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// openSession loads config, opens the device database and hydrates the
// engine. The caller must call close.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := opts.newLogger(cmd.ErrOrStderr())

	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clock := opts.Clock
	if clock == nil {
		loc, err := cfg.Location()
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
		}
		clock = ledger.SystemClock{Location: loc}
	}

	var (
		auth    remote.Authenticator = offline{}
		submit  remote.Submitter     = offline{}
		fetcher remote.Fetcher       = offline{}
	)
	if cfg.Sync.Enabled() {
		client := remote.NewClient(cfg.Sync.ServerURL, cfg.Sync.DeviceID, cfg.Sync.Secret,
			remote.WithClientLogger(logger),
		)
		auth, submit, fetcher = client, client, client
	}

	engineOpts := []engine.Option{
		engine.WithClock(clock),
		engine.WithLogger(logger),
		engine.WithStoreKey(cfg.StoreKey),
		engine.WithSyncTimeout(cfg.Sync.Timeout),
		engine.WithRetryInterval(cfg.Sync.RetryInterval),
		engine.WithStaleAfter(cfg.Sync.StaleAfter),
		engine.WithWeekStart(cfg.FirstWeekday()),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}
	eng := engine.New(st, auth, submit, fetcher, engineOpts...)

	if err := eng.Hydrate(commandContext(cmd)); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load progress", err)
	}

	return &session{cfg: cfg, store: st, engine: eng, logger: logger}, nil
}

// syncEnabled reports whether a sync server is configured.
func (s *session) syncEnabled() bool {
	return s.cfg.Sync.Enabled()
}

// flush submits queued snapshots when a server is configured. A failure
// leaves the snapshots queued for the next command.
func (s *session) flush(ctx context.Context) error {
	if !s.syncEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Sync.Timeout)
	defer cancel()
	return s.engine.Flush(ctx)
}

// close writes the final state and closes the database.
func (s *session) close(ctx context.Context) error {
	engErr := s.engine.Close(ctx)
	storeErr := s.store.Close()
	if err := errors.Join(engErr, storeErr); err != nil {
		return WrapExitError(ExitCommandError, "failed to save progress", err)
	}
	return nil
}

// withSession runs fn against an open session and always closes it.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *session) error) (err error) {
	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	defer func() {
		err = errors.Join(err, s.close(context.WithoutCancel(ctx)))
	}()
	return fn(ctx, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
