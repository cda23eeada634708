package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// SyncResult is the payload of the sync command.
type SyncResult struct {
	Submitted int `json:"submitted"`
	Pending   int `json:"pending"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Submit queued updates to the sync server",
		Long: `Submit every queued stats update to the sync server, oldest first.

Updates that cannot be delivered stay queued; the command exits with code 1.

Example:
  ceremony sync`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if !s.syncEnabled() {
					_ = out.Error(ErrCodeNoRemote, "no sync server configured", nil)
					return NewExitError(ExitCommandError, "no sync server configured")
				}

				before := len(s.engine.PendingSync())
				flushErr := s.flush(ctx)
				result := SyncResult{Pending: len(s.engine.PendingSync())}
				result.Submitted = before - result.Pending

				if flushErr != nil {
					_ = out.Error(ErrCodeSync, flushErr.Error(), result)
					return WrapExitError(ExitFailure, "sync failed", flushErr)
				}
				return out.Success(result, fmt.Sprintf("Synced %s.", plural(result.Submitted, "update")))
			})
		},
	}
}
