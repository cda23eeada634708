package ledger

// Rank is the approximate ranking bucket for a number of completed
// ceremonies.
type Rank struct {
	Rank       int `json:"rank"`
	Percentile int `json:"percentile"`
}

// RankFor maps completed ceremonies to a coarse rank and percentile.
//
// This is a placeholder until the server computes a real rank. Keep the
// buckets exactly as they are; clients compare against them.
func RankFor(completed int) Rank {
	c := completed
	switch {
	case c >= 100:
		return Rank{Rank: 1, Percentile: 99}
	case c >= 50:
		return Rank{Rank: 100 - c, Percentile: 95}
	case c >= 30:
		return Rank{Rank: 200 - 2*c, Percentile: 90}
	case c >= 10:
		return Rank{Rank: 500 - 10*c, Percentile: 75}
	case c >= 5:
		return Rank{Rank: 1000 - 50*c, Percentile: 50}
	default:
		return Rank{Rank: 5000 - 100*c, Percentile: 25}
	}
}
