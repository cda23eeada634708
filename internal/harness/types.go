package harness

// State is the observable engine state after a step.
type State struct {
	Day               string `json:"day"`
	Total             int    `json:"total"`
	Completed         int    `json:"completed"`
	CurrentStreak     int    `json:"currentStreak"`
	LongestStreak     int    `json:"longestStreak"`
	LastCeremonyDate  string `json:"lastCeremonyDate"`
	Pending           int    `json:"pending"`
	Rank              int    `json:"rank"`
	Percentile        int    `json:"percentile"`
	Ranking           string `json:"ranking"`
	VerifiedCompleted int    `json:"verifiedCompleted"`
}

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Action string         `json:"action"`
	Args   map[string]int `json:"args,omitempty"`
	Error  string         `json:"error,omitempty"`
	State  State          `json:"state"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Trace has one event per step.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Acked is the number of snapshots the sync server acknowledged.
	Acked int `json:"acked"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// toCanonical converts the event for canonical JSON, which accepts only
// strings, bools, ints, slices and maps.
func (e TraceEvent) toCanonical() map[string]any {
	m := map[string]any{
		"seq":    e.Seq,
		"action": e.Action,
		"state": map[string]any{
			"day":               e.State.Day,
			"total":             e.State.Total,
			"completed":         e.State.Completed,
			"currentStreak":     e.State.CurrentStreak,
			"longestStreak":     e.State.LongestStreak,
			"lastCeremonyDate":  e.State.LastCeremonyDate,
			"pending":           e.State.Pending,
			"rank":              e.State.Rank,
			"percentile":        e.State.Percentile,
			"ranking":           e.State.Ranking,
			"verifiedCompleted": e.State.VerifiedCompleted,
		},
	}
	if len(e.Args) > 0 {
		args := make(map[string]any, len(e.Args))
		for k, v := range e.Args {
			args[k] = v
		}
		m["args"] = args
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}
