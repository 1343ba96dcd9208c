package cluster

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/errwatch/errwatch/internal/model"
	"github.com/errwatch/errwatch/internal/report"
	"github.com/errwatch/errwatch/internal/timex"
)

func fakeNode(t *testing.T, rep *report.Report, stats report.Summary) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/report", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rep)
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stats)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func nodeReport(group string, day, count int) *report.Report {
	period := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
	return &report.Report{
		Granularity:   timex.Day,
		Dimension:     model.DimHost,
		TotalCount:    count,
		FilteredCount: count,
		GroupCount:    1,
		Series: []report.Series{{
			Group:  group,
			Points: []report.Point{{Period: period, Count: count}},
			Total:  count,
		}},
	}
}

func TestAggregatorReportMergesByGroupAndPeriod(t *testing.T) {
	// Both nodes report the same group and period; counts must sum.
	node1 := fakeNode(t, nodeReport("web-01", 1, 4), report.Summary{})
	node2 := fakeNode(t, nodeReport("web-01", 1, 6), report.Summary{})

	agg := NewAggregator([]string{node1.URL, node2.URL})
	merged, err := agg.Report(QueryParams{RawQuery: "granularity=day&dim=host"})
	if err != nil {
		t.Fatal(err)
	}

	if merged.TotalCount != 10 || merged.FilteredCount != 10 {
		t.Errorf("counts = %d/%d, want 10/10", merged.TotalCount, merged.FilteredCount)
	}
	if len(merged.Series) != 1 {
		t.Fatalf("series = %d, want 1", len(merged.Series))
	}
	s := merged.Series[0]
	if s.Group != "web-01" || s.Total != 10 {
		t.Errorf("merged series = %+v", s)
	}
	if len(s.Points) != 1 || s.Points[0].Count != 10 {
		t.Errorf("merged points = %+v", s.Points)
	}
}

func TestAggregatorReportDistinctGroups(t *testing.T) {
	node1 := fakeNode(t, nodeReport("web-01", 1, 9), report.Summary{})
	node2 := fakeNode(t, nodeReport("web-02", 2, 3), report.Summary{})

	agg := NewAggregator([]string{node1.URL, node2.URL})
	merged, err := agg.Report(QueryParams{TopN: 10})
	if err != nil {
		t.Fatal(err)
	}

	if merged.GroupCount != 2 || len(merged.Series) != 2 {
		t.Fatalf("groups = %d, series = %d", merged.GroupCount, len(merged.Series))
	}
	if merged.Series[0].Group != "web-01" {
		t.Errorf("top group = %q, want web-01 (larger total)", merged.Series[0].Group)
	}
	if len(merged.Growth) != 2 {
		t.Errorf("growth entries = %d, want 2", len(merged.Growth))
	}
}

func TestAggregatorSkipsFailedNodes(t *testing.T) {
	healthy := fakeNode(t, nodeReport("web-01", 1, 5), report.Summary{})
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	agg := NewAggregator([]string{healthy.URL, broken.URL})
	merged, err := agg.Report(QueryParams{})
	if err != nil {
		t.Fatal(err)
	}
	if merged.TotalCount != 5 {
		t.Errorf("total = %d, want 5 (healthy node only)", merged.TotalCount)
	}
}

func TestAggregatorNoNodes(t *testing.T) {
	agg := NewAggregator(nil)
	if _, err := agg.Report(QueryParams{}); err == nil {
		t.Error("expected error when no node responds")
	}
}

func TestAggregatorStats(t *testing.T) {
	node1 := fakeNode(t, &report.Report{}, report.Summary{
		TotalEvents: 4,
		MinTime:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxTime:     time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		HostCounts:  map[string]int{"web-01": 4},
	})
	node2 := fakeNode(t, &report.Report{}, report.Summary{
		TotalEvents: 2,
		MinTime:     time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
		MaxTime:     time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		HostCounts:  map[string]int{"web-01": 1, "web-02": 1},
	})

	agg := NewAggregator([]string{node1.URL, node2.URL})
	stats, err := agg.Stats("")
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("total events = %d, want 6", stats.TotalEvents)
	}
	if stats.MinTime.Month() != 2 || stats.MaxTime.Day() != 9 {
		t.Errorf("time range = %v .. %v", stats.MinTime, stats.MaxTime)
	}
	if stats.HostCounts["web-01"] != 5 || stats.HostCounts["web-02"] != 1 {
		t.Errorf("host counts = %v", stats.HostCounts)
	}
}
