package report

import (
	"sort"
	"time"

	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/timex"
)

// Point is one bucket of an aggregated series.
type Point struct {
	Period time.Time `json:"period"`
	Count  int       `json:"count"`
}

// Series is the ordered per-bucket counts for one group (or the overall
// series, with an empty Group). The series is sparse: only periods with
// at least one event appear.
type Series struct {
	Group  string  `json:"group,omitempty"`
	Points []Point `json:"points"`
	Total  int     `json:"total"`
}

// Aggregate buckets events into calendar periods and counts them. When
// dim is DimNone a single overall series is returned; otherwise one
// series per distinct group value, ordered by the group's first
// appearance in the input. Points are sorted by period ascending.
// Every event lands in exactly one bucket, so the totals sum to
// len(events).
func Aggregate(events []model.Event, g timex.Granularity, dim model.Dimension) []Series {
	type groupAgg struct {
		buckets map[int64]int
		periods map[int64]time.Time
		total   int
	}

	aggs := make(map[string]*groupAgg)
	var order []string

	for i := range events {
		group := ""
		if dim != model.DimNone {
			group = events[i].Value(dim)
		}
		agg, ok := aggs[group]
		if !ok {
			agg = &groupAgg{
				buckets: make(map[int64]int),
				periods: make(map[int64]time.Time),
			}
			aggs[group] = agg
			order = append(order, group)
		}

		period := timex.PeriodStart(g, events[i].Timestamp)
		key := period.Unix()
		agg.buckets[key]++
		if _, seen := agg.periods[key]; !seen {
			agg.periods[key] = period
		}
		agg.total++
	}

	series := make([]Series, 0, len(order))
	for _, group := range order {
		agg := aggs[group]
		points := make([]Point, 0, len(agg.buckets))
		for key, count := range agg.buckets {
			points = append(points, Point{Period: agg.periods[key], Count: count})
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Period.Before(points[j].Period)
		})
		series = append(series, Series{Group: group, Points: points, Total: agg.total})
	}
	return series
}
