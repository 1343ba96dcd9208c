package report

import (
	"sort"
	"time"
)

// GrowthState is the tri-state outcome of a growth computation.
type GrowthState string

const (
	// GrowthComputed means delta and pct are both defined.
	GrowthComputed GrowthState = "computed"
	// GrowthNoHistory means the series has fewer than two periods.
	GrowthNoHistory GrowthState = "unavailable_insufficient_history"
	// GrowthZeroBase means the previous period had zero events, so pct
	// is undefined while delta still is. Callers must render this as
	// unavailable, never as 0%.
	GrowthZeroBase GrowthState = "unavailable_zero_base"
)

// Growth is the period-over-period change for one series, derived from
// its last two periods. The series is sparse, so "previous" is the last
// period with data, not necessarily the adjacent calendar period.
type Growth struct {
	State      GrowthState `json:"state"`
	Group      string      `json:"group,omitempty"`
	PrevPeriod time.Time   `json:"prev_period,omitzero"`
	LastPeriod time.Time   `json:"last_period,omitzero"`
	LastCount  int         `json:"last_count"`
	Delta      int         `json:"delta"`
	Pct        float64     `json:"pct"` // meaningful only when State == GrowthComputed
}

// ComputeGrowth derives the growth metric for a single ordered series.
func ComputeGrowth(s Series) Growth {
	g := Growth{Group: s.Group}
	if len(s.Points) < 2 {
		g.State = GrowthNoHistory
		if len(s.Points) == 1 {
			g.LastPeriod = s.Points[0].Period
			g.LastCount = s.Points[0].Count
		}
		return g
	}

	last := s.Points[len(s.Points)-1]
	prev := s.Points[len(s.Points)-2]
	g.PrevPeriod = prev.Period
	g.LastPeriod = last.Period
	g.LastCount = last.Count
	g.Delta = last.Count - prev.Count

	if prev.Count == 0 {
		g.State = GrowthZeroBase
		return g
	}
	g.State = GrowthComputed
	g.Pct = float64(g.Delta) / float64(prev.Count)
	return g
}

// RankGrowth computes growth for every series and ranks the results by
// pct descending. Series without a defined pct rank last but are still
// included while capacity allows. At most cap entries are returned;
// cap <= 0 means no cap.
func RankGrowth(series []Series, cap int) []Growth {
	growths := make([]Growth, 0, len(series))
	for _, s := range series {
		growths = append(growths, ComputeGrowth(s))
	}
	sort.SliceStable(growths, func(i, j int) bool {
		gi, gj := growths[i], growths[j]
		if gi.State == GrowthComputed && gj.State == GrowthComputed {
			return gi.Pct > gj.Pct
		}
		return gi.State == GrowthComputed && gj.State != GrowthComputed
	})
	if cap > 0 && len(growths) > cap {
		growths = growths[:cap]
	}
	return growths
}
