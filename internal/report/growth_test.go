package report

import (
	"testing"
	"time"
)

func growthSeries(group string, counts ...int) Series {
	s := Series{Group: group}
	for i, c := range counts {
		s.Points = append(s.Points, Point{
			Period: time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			Count:  c,
		})
		s.Total += c
	}
	return s
}

func TestComputeGrowth(t *testing.T) {
	g := ComputeGrowth(growthSeries("", 10, 15))
	if g.State != GrowthComputed {
		t.Fatalf("state = %v, want computed", g.State)
	}
	if g.Delta != 5 {
		t.Errorf("delta = %d, want 5", g.Delta)
	}
	if g.Pct != 0.5 {
		t.Errorf("pct = %v, want 0.5", g.Pct)
	}
	if g.LastCount != 15 {
		t.Errorf("last count = %d, want 15", g.LastCount)
	}
}

func TestComputeGrowthZeroBase(t *testing.T) {
	g := ComputeGrowth(growthSeries("", 0, 5))
	if g.State != GrowthZeroBase {
		t.Fatalf("state = %v, want zero base", g.State)
	}
	// Delta is still defined even though pct is not.
	if g.Delta != 5 {
		t.Errorf("delta = %d, want 5", g.Delta)
	}
}

func TestComputeGrowthInsufficientHistory(t *testing.T) {
	if g := ComputeGrowth(growthSeries("", 7)); g.State != GrowthNoHistory {
		t.Errorf("single period: state = %v, want no history", g.State)
	}
	if g := ComputeGrowth(Series{}); g.State != GrowthNoHistory {
		t.Errorf("empty series: state = %v, want no history", g.State)
	}
}

func TestComputeGrowthUsesLastTwoPeriodsWithData(t *testing.T) {
	// Sparse series: the comparison base is the last period that has
	// data, not the adjacent calendar period.
	s := Series{
		Group: "",
		Points: []Point{
			{Period: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Count: 4},
			{Period: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), Count: 8},
		},
	}
	g := ComputeGrowth(s)
	if g.State != GrowthComputed || g.Pct != 1.0 {
		t.Errorf("state = %v, pct = %v; want computed, 1.0", g.State, g.Pct)
	}
	if g.PrevPeriod.Day() != 1 || g.LastPeriod.Day() != 20 {
		t.Errorf("periods = %v, %v", g.PrevPeriod, g.LastPeriod)
	}
}

func TestRankGrowthOrder(t *testing.T) {
	series := []Series{
		growthSeries("flat", 10, 10),     // pct 0
		growthSeries("doubling", 5, 10),  // pct 1
		growthSeries("single", 3),        // unavailable
		growthSeries("fromzero", 0, 2),   // unavailable
		growthSeries("shrinking", 10, 5), // pct -0.5
	}

	got := RankGrowth(series, 0)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}

	wantOrder := []string{"doubling", "flat", "shrinking", "single", "fromzero"}
	for i, want := range wantOrder {
		if got[i].Group != want {
			t.Errorf("rank %d = %q, want %q", i, got[i].Group, want)
		}
	}
	// Unavailable entries always rank after computed ones.
	for i := 0; i < 3; i++ {
		if got[i].State != GrowthComputed {
			t.Errorf("rank %d state = %v, want computed", i, got[i].State)
		}
	}
}

func TestRankGrowthCap(t *testing.T) {
	var series []Series
	for i := 0; i < 15; i++ {
		series = append(series, growthSeries(string(rune('a'+i)), 1, 2))
	}
	if got := RankGrowth(series, GrowthGroupCap); len(got) != GrowthGroupCap {
		t.Errorf("len = %d, want %d", len(got), GrowthGroupCap)
	}
}
