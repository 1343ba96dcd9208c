package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/timex"
)

// WriteCSV renders the report's aggregated series as UTF-8 CSV with a
// header row. Grouped reports sort by group then period; ungrouped by
// period alone.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)

	if rep.Dimension == model.DimNone {
		if err := cw.Write([]string{"period", "count"}); err != nil {
			return err
		}
		for _, s := range rep.Series {
			for _, p := range s.Points {
				if err := cw.Write([]string{timex.Label(p.Period), strconv.Itoa(p.Count)}); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if err := cw.Write([]string{string(rep.Dimension), "period", "count"}); err != nil {
		return err
	}

	series := make([]Series, len(rep.Series))
	copy(series, rep.Series)
	sort.Slice(series, func(i, j int) bool {
		return series[i].Group < series[j].Group
	})
	for _, s := range series {
		for _, p := range s.Points {
			if err := cw.Write([]string{s.Group, timex.Label(p.Period), strconv.Itoa(p.Count)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
