package report

import (
	"strings"

	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/pkg/evql"
	"github.com/errwatch/errwatch/internal/timex"
)

// Filter applies the date-range, keyword, multi-select, and evql filters
// to the canonical rows, returning the retained subset in input order.
// An empty result is a valid outcome.
func Filter(events []model.Event, p Params, node evql.Node) []model.Event {
	sets := make(map[model.Dimension]map[string]bool, len(p.Selections))
	for dim, values := range p.Selections {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		// An empty set stays in the map: it excludes everything.
		sets[dim] = set
	}

	keyword := strings.ToLower(p.Keyword)

	var out []model.Event
	for i := range events {
		ev := &events[i]

		if !p.StartDate.IsZero() || !p.EndDate.IsZero() {
			d := timex.DateOnly(ev.Timestamp)
			if !p.StartDate.IsZero() && d.Before(timex.DateOnly(p.StartDate)) {
				continue
			}
			if !p.EndDate.IsZero() && d.After(timex.DateOnly(p.EndDate)) {
				continue
			}
		}

		if keyword != "" && !strings.Contains(strings.ToLower(ev.URL), keyword) {
			continue
		}

		retained := true
		for dim, set := range sets {
			if !set[ev.Value(dim)] {
				retained = false
				break
			}
		}
		if !retained {
			continue
		}

		if node != nil && !evql.Match(node, ev) {
			continue
		}

		out = append(out, *ev)
	}
	return out
}
