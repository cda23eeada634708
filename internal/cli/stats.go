package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/roach88/ceremony/internal/ledger"
)

// StatsView is the payload of the stats command.
type StatsView struct {
	ledger.Stats
	TodayCompleted  int         `json:"todayCompleted"`
	TodayIncomplete int         `json:"todayIncomplete"`
	ThisWeek        int         `json:"thisWeek"`
	ThisMonth       int         `json:"thisMonth"`
	LocalRank       ledger.Rank `json:"localRank"`
	PendingSync     int         `json:"pendingSync"`
}

var (
	cardStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#45475a")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#74c7ec")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8")).Width(16)
	hotStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab387")).Bold(true)
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show streak and counters",
		Long: `Show the current streak, totals and the approximate local rank.

Example:
  ceremony stats
  ceremony stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withSession(cmd, rootOpts, func(_ context.Context, s *session) error {
				view := collectStats(s)
				return out.Success(view, renderStatsCard(view))
			})
		},
	}
}

func collectStats(s *session) StatsView {
	e := s.engine
	return StatsView{
		Stats:           e.Stats(),
		TodayCompleted:  e.TodayCompletedCount(),
		TodayIncomplete: e.TodayIncompleteCount(),
		ThisWeek:        e.ThisWeekCount(),
		ThisMonth:       e.MonthlyCount(),
		LocalRank:       e.LocalRanking(),
		PendingSync:     len(e.PendingSync()),
	}
}

func renderStatsCard(v StatsView) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	last := "never"
	if !v.LastCeremonyDate.IsZero() {
		last = v.LastCeremonyDate.String()
	}

	rows := []string{
		titleStyle.Render("Ceremony progress"),
		"",
		row("Streak", hotStyle.Render(plural(v.CurrentStreak, "day"))),
		row("Longest", plural(v.LongestStreak, "day")),
		row("Today", fmt.Sprintf("%d done, %d incomplete", v.TodayCompleted, v.TodayIncomplete)),
		row("This week", fmt.Sprint(v.ThisWeek)),
		row("This month", fmt.Sprint(v.ThisMonth)),
		row("Completed", fmt.Sprintf("%d of %d", v.CompletedCeremonies, v.TotalCeremonies)),
		row("Last ceremony", last),
		row("Local rank", fmt.Sprintf("#%d (top %d%%)", v.LocalRank.Rank, 100-v.LocalRank.Percentile)),
	}
	if v.PendingSync > 0 {
		rows = append(rows, row("Pending sync", plural(v.PendingSync, "update")))
	}
	return cardStyle.Render(strings.Join(rows, "\n"))
}
