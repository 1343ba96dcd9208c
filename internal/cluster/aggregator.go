// Package cluster centralizes scatter-gather query logic for a console
// node fronting several errwatch data nodes.
package cluster

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/errwatch/errwatch/internal/report"
)

// Aggregator fans report queries out to all data nodes and merges the
// results into one view.
type Aggregator struct {
	DataNodes []string
	Client    *http.Client
}

// QueryParams carries the raw query string and auth header to forward.
type QueryParams struct {
	RawQuery string
	Auth     string
	TopN     int
}

func NewAggregator(nodes []string) *Aggregator {
	return &Aggregator{
		DataNodes: nodes,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Report performs a scatter-gather report computation. Per-node series
// are merged by (group, period) with counts summed, then top-N and
// growth are recomputed over the merged series.
func (a *Aggregator) Report(params QueryParams) (*report.Report, error) {
	reports := a.collect(params)
	if len(reports) == 0 {
		return nil, fmt.Errorf("no data nodes responded")
	}

	merged := &report.Report{
		Granularity: reports[0].Granularity,
		Dimension:   reports[0].Dimension,
	}

	type groupAgg struct {
		buckets map[int64]report.Point
	}
	groups := make(map[string]*groupAgg)
	var order []string

	for _, rep := range reports {
		merged.TotalCount += rep.TotalCount
		merged.FilteredCount += rep.FilteredCount
		for _, s := range rep.Series {
			agg, ok := groups[s.Group]
			if !ok {
				agg = &groupAgg{buckets: make(map[int64]report.Point)}
				groups[s.Group] = agg
				order = append(order, s.Group)
			}
			for _, p := range s.Points {
				key := p.Period.Unix()
				prev := agg.buckets[key]
				agg.buckets[key] = report.Point{Period: p.Period, Count: prev.Count + p.Count}
			}
		}
	}

	series := make([]report.Series, 0, len(order))
	for _, group := range order {
		agg := groups[group]
		points := make([]report.Point, 0, len(agg.buckets))
		total := 0
		for _, p := range agg.buckets {
			points = append(points, p)
			total += p.Count
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Period.Before(points[j].Period)
		})
		series = append(series, report.Series{Group: group, Points: points, Total: total})
	}
	merged.GroupCount = len(series)

	if merged.Dimension == "" {
		merged.Series = series
		if len(series) == 1 {
			merged.Growth = []report.Growth{report.ComputeGrowth(series[0])}
		} else {
			merged.Growth = []report.Growth{{State: report.GrowthNoHistory}}
		}
		return merged, nil
	}

	n := params.TopN
	if n <= 0 {
		n = report.TopNDefault
	}
	merged.Series = report.TopN(series, n)
	merged.Growth = report.RankGrowth(merged.Series, report.GrowthGroupCap)
	return merged, nil
}

// collect fetches per-node reports concurrently, skipping nodes that
// fail.
func (a *Aggregator) collect(params QueryParams) []*report.Report {
	var reports []*report.Report
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range a.DataNodes {
		wg.Add(1)
		go func(nodeURL string) {
			defer wg.Done()
			url := fmt.Sprintf("%s/api/report?%s", nodeURL, params.RawQuery)
			req, err := http.NewRequest("GET", url, nil)
			if err != nil {
				return
			}
			if params.Auth != "" {
				req.Header.Set("Authorization", params.Auth)
			}

			resp, err := a.Client.Do(req)
			if err != nil {
				log.Printf("[Cluster] Error from node %s: %v", nodeURL, err)
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				log.Printf("[Cluster] Node %s returned status %d", nodeURL, resp.StatusCode)
				return
			}
			var rep report.Report
			if err := json.NewDecoder(resp.Body).Decode(&rep); err == nil {
				mu.Lock()
				reports = append(reports, &rep)
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()
	return reports
}

// Stats performs scatter-gather summary aggregation.
func (a *Aggregator) Stats(auth string) (report.Summary, error) {
	total := report.Summary{
		HostCounts:     make(map[string]int),
		ConnectorDist:  make(map[string]int),
		ConnectionDist: make(map[string]int),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range a.DataNodes {
		wg.Add(1)
		go func(nodeURL string) {
			defer wg.Done()
			req, _ := http.NewRequest("GET", fmt.Sprintf("%s/api/stats", nodeURL), nil)
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			resp, err := a.Client.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return
			}
			var nodeStats report.Summary
			if err := json.NewDecoder(resp.Body).Decode(&nodeStats); err != nil {
				return
			}
			mu.Lock()
			total.TotalEvents += nodeStats.TotalEvents
			total.DroppedRows += nodeStats.DroppedRows
			if total.MinTime.IsZero() || (!nodeStats.MinTime.IsZero() && nodeStats.MinTime.Before(total.MinTime)) {
				total.MinTime = nodeStats.MinTime
			}
			if nodeStats.MaxTime.After(total.MaxTime) {
				total.MaxTime = nodeStats.MaxTime
			}
			for k, v := range nodeStats.HostCounts {
				total.HostCounts[k] += v
			}
			for k, v := range nodeStats.ConnectorDist {
				total.ConnectorDist[k] += v
			}
			for k, v := range nodeStats.ConnectionDist {
				total.ConnectionDist[k] += v
			}
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	return total, nil
}
