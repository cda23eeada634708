package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/ledger"
)

// RecordOptions holds flags for the record and abandon commands.
type RecordOptions struct {
	*RootOptions
	Duration int
}

// RecordResult is the payload of record and abandon.
type RecordResult struct {
	Log         ledger.CeremonyLog `json:"log"`
	Stats       ledger.Stats       `json:"stats"`
	PendingSync int                `json:"pendingSync"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a completed ceremony",
		Long: `Record a ceremony that was completed just now.

The attempt extends your streak and is queued for sync. When a sync server
is configured the queue is submitted before the command exits.

Example:
  ceremony record --duration 180`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, opts, true)
		},
	}

	cmd.Flags().IntVarP(&opts.Duration, "duration", "d", 0, "ceremony length in seconds (required)")
	_ = cmd.MarkFlagRequired("duration")

	return cmd
}

// NewAbandonCommand creates the abandon command.
func NewAbandonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "abandon",
		Short: "Log an incomplete ceremony",
		Long: `Log a ceremony that was stopped before it finished.

Incomplete attempts count toward your total but never extend a streak.

Example:
  ceremony abandon --duration 45`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, opts, false)
		},
	}

	cmd.Flags().IntVarP(&opts.Duration, "duration", "d", 0, "seconds elapsed before stopping")

	return cmd
}

func runRecord(cmd *cobra.Command, opts *RecordOptions, completed bool) error {
	if opts.Duration < 0 {
		return NewExitError(ExitCommandError, "duration must not be negative")
	}
	out := opts.formatter(cmd)

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		log, err := s.engine.RecordCeremony(opts.Duration, completed)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to record ceremony", err)
		}

		if err := s.flush(ctx); err != nil {
			out.Warn("sync deferred: %v", err)
		}

		result := RecordResult{
			Log:         log,
			Stats:       s.engine.Stats(),
			PendingSync: len(s.engine.PendingSync()),
		}
		return out.Success(result, formatRecord(result, s.syncEnabled()))
	})
}

func formatRecord(r RecordResult, syncEnabled bool) string {
	var msg string
	if r.Log.Completed {
		msg = fmt.Sprintf("Ceremony recorded (%s). Streak: %s.",
			formatDuration(r.Log.Duration), plural(r.Stats.CurrentStreak, "day"))
	} else {
		msg = fmt.Sprintf("Incomplete ceremony logged after %s. Streak: %s.",
			formatDuration(r.Log.Duration), plural(r.Stats.CurrentStreak, "day"))
	}
	if syncEnabled && r.PendingSync > 0 {
		msg += fmt.Sprintf("\n%s waiting to sync.", plural(r.PendingSync, "update"))
	}
	return msg
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds%60 == 0 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
