package report

import (
	"fmt"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/pkg/evql"
	"github.com/errwatch/errwatch/internal/timex"
)

// Report is the full result of one computation pass: the aggregated
// series (post top-N when grouped) and the growth metrics derived from
// them. It is recomputed from scratch on every parameter change and
// never persisted.
type Report struct {
	Granularity   timex.Granularity `json:"granularity"`
	Dimension     model.Dimension   `json:"dimension"`
	TotalCount    int               `json:"total_count"`
	FilteredCount int               `json:"filtered_count"`
	GroupCount    int               `json:"group_count"` // distinct groups before top-N
	Series        []Series          `json:"series"`
	Growth        []Growth          `json:"growth"`
}

// Compute runs the full Filter -> Aggregate -> TopN -> Growth pipeline
// over the canonical table. It is a pure function of its inputs: the
// table is read-only and no state is kept between calls.
func Compute(t *dataset.Table, p Params) (*Report, error) {
	p.Normalize()

	node, err := evql.Parse(p.Query)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	filtered := Filter(t.Events(), p, node)
	series := Aggregate(filtered, p.Granularity, p.Dimension)

	rep := &Report{
		Granularity:   p.Granularity,
		Dimension:     p.Dimension,
		TotalCount:    t.Len(),
		FilteredCount: len(filtered),
		GroupCount:    len(series),
	}

	if p.Dimension == model.DimNone {
		rep.Series = series
		if len(series) == 1 {
			rep.Growth = []Growth{ComputeGrowth(series[0])}
		} else {
			// Empty table after filtering: growth is unavailable, not absent.
			rep.Growth = []Growth{{State: GrowthNoHistory}}
		}
		return rep, nil
	}

	rep.Series = TopN(series, p.TopN)
	rep.Growth = RankGrowth(rep.Series, GrowthGroupCap)
	return rep, nil
}
