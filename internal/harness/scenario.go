package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the clock start when a scenario sets none: 09:00 UTC on
// day D.
var DefaultStart = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// Step actions.
const (
	ActionRecord      = "record"       // completed ceremony of Duration seconds
	ActionAbandon     = "abandon"      // incomplete ceremony of Duration seconds
	ActionStart       = "start"        // mark a ceremony active
	ActionStop        = "stop"         // log the active ceremony as incomplete
	ActionWait        = "wait"         // advance the clock by Seconds
	ActionAdvanceDays = "advance_days" // advance the clock by Days
	ActionOffline     = "offline"      // sync server rejects submissions
	ActionOnline      = "online"       // sync server accepts submissions
	ActionFlush       = "flush"        // drain the outbox
	ActionRestart     = "restart"      // close the engine and hydrate a new one
)

var validActions = map[string]bool{
	ActionRecord: true, ActionAbandon: true, ActionStart: true, ActionStop: true,
	ActionWait: true, ActionAdvanceDays: true, ActionOffline: true,
	ActionOnline: true, ActionFlush: true, ActionRestart: true,
}

// Scenario is a scripted sequence of engine interactions.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Start is the initial clock time (RFC 3339). Default: DefaultStart.
	Start string `yaml:"start,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Acked is the number of snapshots the sync server must have
	// acknowledged by the end, if set.
	Acked *int `yaml:"acked,omitempty"`
}

// Step is one action plus optional expectations checked right after it.
type Step struct {
	Action   string  `yaml:"action"`
	Duration int     `yaml:"duration,omitempty"`
	Days     int     `yaml:"days,omitempty"`
	Seconds  int     `yaml:"seconds,omitempty"`
	Expect   *Expect `yaml:"expect,omitempty"`
}

// Expect lists values to check. Unset fields are not checked.
type Expect struct {
	Total            *int    `yaml:"total,omitempty"`
	Completed        *int    `yaml:"completed,omitempty"`
	CurrentStreak    *int    `yaml:"current_streak,omitempty"`
	LongestStreak    *int    `yaml:"longest_streak,omitempty"`
	LastCeremonyDate *string `yaml:"last_ceremony_date,omitempty"`
	Pending          *int    `yaml:"pending,omitempty"`
	Rank             *int    `yaml:"rank,omitempty"`
	Percentile       *int    `yaml:"percentile,omitempty"`
	Ranking          string  `yaml:"ranking,omitempty"`
	Error            *bool   `yaml:"error,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos do not silently disable an expectation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	for i, step := range s.Steps {
		if !validActions[step.Action] {
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
		if step.Duration < 0 || step.Days < 0 || step.Seconds < 0 {
			return fmt.Errorf("step %d: negative argument", i)
		}
		if step.Expect != nil && step.Expect.Ranking != "" {
			switch step.Expect.Ranking {
			case "absent", "fresh", "stale":
			default:
				return fmt.Errorf("step %d: ranking must be absent, fresh or stale", i)
			}
		}
	}
	return nil
}

func (s *Scenario) startTime() time.Time {
	if s.Start == "" {
		return DefaultStart
	}
	t, _ := time.Parse(time.RFC3339, s.Start)
	return t
}
