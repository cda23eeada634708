package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/ledger"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	Limit int
}

// LogsResult is the payload of the logs command.
type LogsResult struct {
	Logs []ledger.CeremonyLog `json:"logs"`
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recent ceremonies",
		Long: `List recorded ceremonies, newest first.

Example:
  ceremony logs --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			return withSession(cmd, opts.RootOptions, func(_ context.Context, s *session) error {
				logs := s.engine.RecentLogs(opts.Limit)
				if logs == nil {
					logs = []ledger.CeremonyLog{}
				}
				return out.Success(LogsResult{Logs: logs}, formatLogs(logs))
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "maximum number of logs (0 for all)")

	return cmd
}

func formatLogs(logs []ledger.CeremonyLog) string {
	if len(logs) == 0 {
		return "No ceremonies recorded yet."
	}
	var b strings.Builder
	for i, l := range logs {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "done"
		if !l.Completed {
			status = "incomplete"
		}
		fmt.Fprintf(&b, "%s  %s  %-10s  %6s", l.Date, l.CompletedAt.Format("15:04"), status, formatDuration(l.Duration))
	}
	return b.String()
}
