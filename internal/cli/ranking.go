package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/ranking"
)

// RankingResult is the payload of the ranking command. Server is omitted
// when no sync server is configured.
type RankingResult struct {
	Local  ledger.Rank   `json:"local"`
	Server *ranking.View `json:"server,omitempty"`
}

// NewRankingCommand creates the ranking command.
func NewRankingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ranking",
		Short: "Show local and verified ranking",
		Long: `Show the approximate rank computed on this device and, when a sync
server is configured, the verified ranking fetched from it.

Pending updates are submitted first so the verified ranking is current.

Example:
  ceremony ranking`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				result := RankingResult{Local: s.engine.LocalRanking()}
				if s.syncEnabled() {
					if err := s.flush(ctx); err != nil {
						out.Warn("sync deferred: %v", err)
					}
					view, err := refresh(ctx, s)
					if err != nil {
						out.Warn("%v", err)
					}
					result.Server = &view
				}
				return out.Success(result, formatRanking(result))
			})
		},
	}
}

func refresh(ctx context.Context, s *session) (ranking.View, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Sync.Timeout)
	defer cancel()
	view, err := s.engine.RefreshRanking(ctx)
	if errors.Is(err, ranking.ErrRefreshFailed) {
		return view, fmt.Errorf("showing last known ranking: %w", err)
	}
	return view, err
}

func formatRanking(r RankingResult) string {
	msg := fmt.Sprintf("Local rank: #%d (top %d%%)", r.Local.Rank, 100-r.Local.Percentile)
	if r.Server == nil {
		return msg
	}
	v := r.Server
	switch v.State {
	case ranking.StateAbsent:
		return msg + "\nVerified rank: not available yet"
	case ranking.StateStale:
		msg += fmt.Sprintf("\nVerified rank: #%d (top %d%%, may be out of date)", v.Snapshot.Rank, 100-v.Snapshot.Percentile)
	default:
		msg += fmt.Sprintf("\nVerified rank: #%d (top %d%%)", v.Snapshot.Rank, 100-v.Snapshot.Percentile)
	}
	return msg + fmt.Sprintf("\nVerified: %d completed, %s streak",
		v.Snapshot.VerifiedCompleted, plural(v.Snapshot.VerifiedStreak, "day"))
}
