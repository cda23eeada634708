package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func intPtr(v int) *int { return &v }

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRunWithGolden_OfflineRestart(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/offline_restart.yaml")
	require.NoError(t, err)

	result := RunWithGolden(t, scenario)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 2, result.Acked)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "expects a streak that cannot exist",
		Steps: []Step{
			{Action: ActionRecord, Duration: 60, Expect: &Expect{CurrentStreak: intPtr(5), Ranking: "fresh"}},
		},
		Acked: intPtr(1),
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"step 0 (record): current_streak: want 5, got 1",
		"step 0 (record): ranking: want fresh, got absent",
		"acked: want 1, got 0",
	}, result.Errors)
}

func TestRun_TraceIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/b_consecutive_days.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := TraceJSON(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := TraceJSON(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_CustomStart(t *testing.T) {
	scenario := &Scenario{
		Name:        "leap",
		Description: "starts on a leap day",
		Start:       "2028-02-29T23:30:00Z",
		Steps: []Step{
			{Action: ActionRecord, Duration: 60},
			{Action: ActionWait, Seconds: 3600},
			{Action: ActionRecord, Duration: 60},
		},
	}
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "2028-02-29", result.Trace[0].State.Day)
	assert.Equal(t, "2028-03-01", result.Trace[2].State.Day)
	assert.Equal(t, 2, result.Trace[2].State.CurrentStreak)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nsteps: [{action: record}]\nasserts: []\n", "field asserts not found"},
		{"missing name", "description: y\nsteps: [{action: record}]\n", "name is required"},
		{"missing description", "name: x\nsteps: [{action: record}]\n", "description is required"},
		{"no steps", "name: x\ndescription: y\n", "steps list is required"},
		{"unknown action", "name: x\ndescription: y\nsteps: [{action: jump}]\n", `unknown action "jump"`},
		{"negative duration", "name: x\ndescription: y\nsteps: [{action: record, duration: -1}]\n", "negative argument"},
		{"bad start", "name: x\ndescription: y\nstart: tomorrow\nsteps: [{action: record}]\n", "start"},
		{"bad ranking", "name: x\ndescription: y\nsteps: [{action: record, expect: {ranking: warm}}]\n", "ranking must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
