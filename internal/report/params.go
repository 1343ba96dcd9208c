package report

import (
	"time"

	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/timex"
)

const (
	// Bounds for the top-N group selector.
	TopNMin     = 3
	TopNMax     = 20
	TopNDefault = 10

	// Maximum number of per-group growth metrics reported.
	GrowthGroupCap = 12
)

// Params is the full parameter set for one report computation. A change
// to any field triggers a fresh Compute; nothing is cached here.
type Params struct {
	Granularity timex.Granularity
	Dimension   model.Dimension // DimNone for the overall series

	// Inclusive calendar-date range. Zero values mean unbounded.
	StartDate time.Time
	EndDate   time.Time

	// Case-insensitive substring match on the URL field.
	Keyword string

	// Optional evql expression applied on top of the other filters.
	Query string

	// Multi-select inclusion filters. A dimension key that is present
	// with an empty slice excludes every row; an absent key applies no
	// constraint.
	Selections map[model.Dimension][]string

	TopN int
}

// Normalize fills defaults and clamps TopN into its bounds.
func (p *Params) Normalize() {
	if !p.Granularity.Valid() {
		p.Granularity = timex.Day
	}
	if p.TopN == 0 {
		p.TopN = TopNDefault
	}
	if p.TopN < TopNMin {
		p.TopN = TopNMin
	}
	if p.TopN > TopNMax {
		p.TopN = TopNMax
	}
}
