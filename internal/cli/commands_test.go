package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceremony/internal/config"
	"github.com/roach88/ceremony/internal/ranking"
	"github.com/roach88/ceremony/internal/server"
	"github.com/roach88/ceremony/internal/testutil"
)

var dayD = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type cliHarness struct {
	opts  *RootOptions
	clock *testutil.FakeClock
}

func newHarness(t *testing.T) *cliHarness {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.DBPath = filepath.Join(t.TempDir(), "device.db")

	clock := testutil.NewFakeClock(dayD)
	return &cliHarness{
		opts: &RootOptions{
			Format: "text",
			Config: cfg,
			Clock:  clock,
			IDs:    testutil.NewSequenceGenerator("id"),
		},
		clock: clock,
	}
}

// withServer points the harness at a fresh sync server.
func (h *cliHarness) withServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := server.New(testutil.NewMemoryStorage(), "test-jwt-secret")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h.opts.Config.Sync.ServerURL = ts.URL
	h.opts.Config.Sync.DeviceID = "device-1"
	h.opts.Config.Sync.Secret = "correct-horse"
	return ts
}

// run executes the command built by newCmd and returns stdout and stderr.
func (h *cliHarness) run(t *testing.T, format string, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	h.opts.Format = format
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newCmd(h.opts)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRecord_Offline(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
	require.NoError(t, err)
	assert.Equal(t, "Ceremony recorded (3m). Streak: 1 day.\n", out)

	out, _, err = h.run(t, "json", NewRecordCommand, "-d", "200")
	require.NoError(t, err)

	var result RecordResult
	decodeData(t, out, &result)
	assert.True(t, result.Log.Completed)
	assert.Equal(t, 200, result.Log.Duration)
	assert.Equal(t, 2, result.Stats.CompletedCeremonies)
	assert.Equal(t, 1, result.Stats.CurrentStreak, "same day does not extend the streak")
	assert.Equal(t, 2, result.PendingSync, "offline snapshots stay queued")
}

func TestRecord_RejectsNegativeDuration(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "text", NewRecordCommand, "--duration", "-5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAbandon_DoesNotExtendStreak(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "text", NewAbandonCommand, "--duration", "45")
	require.NoError(t, err)
	assert.Equal(t, "Incomplete ceremony logged after 45s. Streak: 0 days.\n", out)
}

func TestLogs_Golden(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, _, err = h.run(t, "text", NewAbandonCommand, "--duration", "45")
	require.NoError(t, err)

	out, _, err := h.run(t, "json", NewLogsCommand)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "logs", []byte(out))
}

func TestLogs_Text(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "text", NewLogsCommand)
	require.NoError(t, err)
	assert.Equal(t, "No ceremonies recorded yet.\n", out)

	_, _, err = h.run(t, "text", NewRecordCommand, "--duration", "95")
	require.NoError(t, err)
	h.clock.AdvanceDays(1)
	_, _, err = h.run(t, "text", NewRecordCommand, "--duration", "120")
	require.NoError(t, err)

	out, _, err = h.run(t, "text", NewLogsCommand, "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19  09:00  done            2m\n", out)
}

func TestStats_JSON(t *testing.T) {
	h := newHarness(t)

	for _, d := range []string{"180", "200"} {
		_, _, err := h.run(t, "text", NewRecordCommand, "--duration", d)
		require.NoError(t, err)
		h.clock.AdvanceDays(1)
	}
	_, _, err := h.run(t, "text", NewAbandonCommand, "--duration", "30")
	require.NoError(t, err)

	out, _, err := h.run(t, "json", NewStatsCommand)
	require.NoError(t, err)

	var view StatsView
	decodeData(t, out, &view)
	assert.Equal(t, 3, view.TotalCeremonies)
	assert.Equal(t, 2, view.CompletedCeremonies)
	assert.Equal(t, 2, view.CurrentStreak)
	assert.Equal(t, 2, view.LongestStreak)
	assert.EqualValues(t, "2026-10-19", view.LastCeremonyDate)
	assert.Equal(t, 0, view.TodayCompleted)
	assert.Equal(t, 1, view.TodayIncomplete)
	assert.Equal(t, 2, view.ThisWeek)
	assert.Equal(t, 2, view.ThisMonth)
	assert.Equal(t, 4800, view.LocalRank.Rank)
	assert.Equal(t, 3, view.PendingSync)
}

func TestStats_TextCard(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
	require.NoError(t, err)

	out, _, err := h.run(t, "text", NewStatsCommand)
	require.NoError(t, err)
	assert.Contains(t, out, "Ceremony progress")
	assert.Contains(t, out, "Streak")
	assert.Contains(t, out, "1 day")
	assert.Contains(t, out, "1 of 1")
	assert.Contains(t, out, "2026-10-18")
	assert.Contains(t, out, "#4900")
	assert.Contains(t, out, "Pending sync")
}

func TestSync_RequiresServer(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "json", NewSyncCommand)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNoRemote, resp.Error.Code)
}

func TestRanking_OfflineShowsLocalOnly(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
	require.NoError(t, err)

	out, _, err := h.run(t, "text", NewRankingCommand)
	require.NoError(t, err)
	assert.Equal(t, "Local rank: #4900 (top 75%)\n", out)

	out, _, err = h.run(t, "json", NewRankingCommand)
	require.NoError(t, err)
	var result RankingResult
	decodeData(t, out, &result)
	assert.Nil(t, result.Server)
}

func TestSync_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.withServer(t)

	out, _, err := h.run(t, "json", NewRecordCommand, "--duration", "180")
	require.NoError(t, err)
	var rec RecordResult
	decodeData(t, out, &rec)
	assert.Equal(t, 0, rec.PendingSync, "record submits before exiting")

	out, stderr, err := h.run(t, "json", NewRankingCommand)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "warning:")

	var result RankingResult
	decodeData(t, out, &result)
	require.NotNil(t, result.Server)
	assert.Equal(t, ranking.StateFresh, result.Server.State)
	assert.Equal(t, 4900, result.Server.Snapshot.Rank)
	assert.Equal(t, 1, result.Server.Snapshot.VerifiedCompleted)

	out, _, err = h.run(t, "text", NewSyncCommand)
	require.NoError(t, err)
	assert.Equal(t, "Synced 0 updates.\n", out)
}

func TestSync_ServerDownKeepsQueue(t *testing.T) {
	h := newHarness(t)
	ts := h.withServer(t)
	ts.Close()

	out, stderr, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
	require.NoError(t, err, "recording never depends on the network")
	assert.Contains(t, out, "1 update waiting to sync.")
	assert.Contains(t, stderr, "warning: sync deferred")

	_, _, err = h.run(t, "json", NewSyncCommand)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, _, err = h.run(t, "json", NewStatsCommand)
	require.NoError(t, err)
	var view StatsView
	decodeData(t, out, &view)
	assert.Equal(t, 1, view.PendingSync)
}

func TestSync_DeliversBacklog(t *testing.T) {
	h := newHarness(t)

	for range 3 {
		_, _, err := h.run(t, "text", NewRecordCommand, "--duration", "180")
		require.NoError(t, err)
		h.clock.AdvanceDays(1)
	}

	h.withServer(t)
	out, _, err := h.run(t, "json", NewSyncCommand)
	require.NoError(t, err)

	var result SyncResult
	decodeData(t, out, &result)
	assert.Equal(t, SyncResult{Submitted: 3, Pending: 0}, result)
}

func TestConfig_RedactsSecrets(t *testing.T) {
	h := newHarness(t)
	h.opts.Config.Sync.Secret = "correct-horse"
	h.opts.Config.Server.JWTSecret = "shh"

	out, _, err := h.run(t, "text", NewConfigCommand)
	require.NoError(t, err)
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "correct-horse")
	assert.NotContains(t, out, "shh")
	assert.Equal(t, "correct-horse", h.opts.Config.Sync.Secret, "redaction works on a copy")
}

func TestConfig_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ceremony.yaml")
	require.NoError(t, os.WriteFile(path, []byte("week_start: monday\n"), 0o600))

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", path, "--format", "json", "config"})
	require.NoError(t, cmd.Execute())

	var cfg config.Config
	decodeData(t, buf.String(), &cfg)
	assert.Equal(t, "monday", cfg.WeekStart)
}

func TestConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ceremony.yaml")
	require.NoError(t, os.WriteFile(path, []byte("week_start: friday\n"), 0o600))

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", path, "config"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E002]")
}

func TestServe_RequiresJWTSecret(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "text", NewServeCommand)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "jwt_secret")
}
