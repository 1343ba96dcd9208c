package report

import (
	"testing"
	"time"

	"github.com/errwatch/errwatch/internal/model"
)

func mkEvent(day int, host, connector, conn, url string) model.Event {
	return model.Event{
		Timestamp:  time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
		Host:       host,
		Connector:  connector,
		Connection: conn,
		URL:        url,
	}
}

func TestFilterDateRangeInclusive(t *testing.T) {
	events := []model.Event{
		mkEvent(1, "a", "", "", ""),
		mkEvent(2, "b", "", "", ""),
		mkEvent(3, "c", "", "", ""),
		mkEvent(4, "d", "", "", ""),
	}
	p := Params{
		StartDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	}

	got := Filter(events, p, nil)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Rows on the boundary dates are retained.
	if got[0].Host != "b" || got[1].Host != "c" {
		t.Errorf("retained %q, %q; want b, c", got[0].Host, got[1].Host)
	}
}

func TestFilterKeywordCaseInsensitive(t *testing.T) {
	events := []model.Event{
		mkEvent(1, "a", "", "", "http://Tokyo-Gateway/err"),
		mkEvent(2, "b", "", "", "http://osaka/err"),
	}

	got := Filter(events, Params{Keyword: "tokyo"}, nil)
	if len(got) != 1 || got[0].Host != "a" {
		t.Errorf("keyword tokyo matched %d rows, want 1 (Tokyo-Gateway)", len(got))
	}
}

func TestFilterSelectionPresentButEmpty(t *testing.T) {
	events := []model.Event{
		mkEvent(1, "web-01", "", "", ""),
		mkEvent(2, "web-02", "", "", ""),
	}
	p := Params{
		Selections: map[model.Dimension][]string{model.DimHost: {}},
	}

	if got := Filter(events, p, nil); len(got) != 0 {
		t.Errorf("empty selection retained %d rows, want 0", len(got))
	}
}

func TestFilterSelectionAbsentKeyAllowsAll(t *testing.T) {
	events := []model.Event{
		mkEvent(1, "web-01", "gw1", "有線", ""),
		mkEvent(2, "web-02", "gw2", "無線", ""),
	}
	p := Params{
		Selections: map[model.Dimension][]string{model.DimConnector: {"gw1"}},
	}

	got := Filter(events, p, nil)
	if len(got) != 1 || got[0].Host != "web-01" {
		t.Errorf("got %d rows, want 1 (web-01)", len(got))
	}
}

func TestFilterEmptyResultIsValid(t *testing.T) {
	events := []model.Event{mkEvent(1, "a", "", "", "http://x")}
	got := Filter(events, Params{Keyword: "nomatch"}, nil)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
