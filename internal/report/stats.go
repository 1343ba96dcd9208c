package report

import (
	"time"

	"github.com/errwatch/errwatch/internal/dataset"
)

// Summary contains high-level counts over the loaded table for the
// dashboard's status view.
type Summary struct {
	TotalEvents    int            `json:"total_events"`
	DroppedRows    int            `json:"dropped_rows"`
	MinTime        time.Time      `json:"min_time,omitzero"`
	MaxTime        time.Time      `json:"max_time,omitzero"`
	HostCounts     map[string]int `json:"host_counts"`
	ConnectorDist  map[string]int `json:"connector_dist"`
	ConnectionDist map[string]int `json:"connection_dist"`
}

// Summarize computes the summary for the given table. dropped is the
// row-loss count reported by the last normalization pass.
func Summarize(t *dataset.Table, dropped int) Summary {
	s := Summary{
		TotalEvents:    t.Len(),
		DroppedRows:    dropped,
		HostCounts:     make(map[string]int),
		ConnectorDist:  make(map[string]int),
		ConnectionDist: make(map[string]int),
	}
	if min, ok := t.MinTime(); ok {
		s.MinTime = min
	}
	if max, ok := t.MaxTime(); ok {
		s.MaxTime = max
	}
	for _, ev := range t.Events() {
		s.HostCounts[ev.Host]++
		s.ConnectorDist[ev.Connector]++
		if ev.Connection != "" {
			s.ConnectionDist[ev.Connection]++
		}
	}
	return s
}
