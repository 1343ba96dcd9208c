package report

import "sort"

// TopN keeps the n groups with the highest total counts and discards the
// rest entirely. The input order is the groups' first-appearance order,
// and the sort is stable, so ties resolve deterministically in favor of
// the group seen first. Retained series keep their full period range.
func TopN(series []Series, n int) []Series {
	if n <= 0 || len(series) <= n {
		ranked := make([]Series, len(series))
		copy(ranked, series)
		sortByTotal(ranked)
		return ranked
	}
	ranked := make([]Series, len(series))
	copy(ranked, series)
	sortByTotal(ranked)
	return ranked[:n]
}

func sortByTotal(series []Series) {
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Total > series[j].Total
	})
}
