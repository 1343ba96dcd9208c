package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
)

func snapshotTable(t *testing.T) *dataset.Table {
	t.Helper()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	events := []model.Event{
		{
			Timestamp:  time.Date(2024, 3, 1, 10, 30, 0, 0, tokyo),
			Host:       "web-01",
			Connector:  "gw1",
			Connection: "有線",
			URL:        "http://example.jp/a",
		},
		{
			Timestamp: time.Date(2024, 3, 2, 11, 0, 0, 0, tokyo),
			Host:      "web-02",
			Connector: "gw2",
		},
		{
			Timestamp: time.Date(2024, 2, 28, 9, 0, 0, 0, tokyo),
			Host:      "web-01",
		},
	}
	return dataset.NewTable(events, tokyo)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.evs")

	sw, err := NewSnapshotWriter()
	if err != nil {
		t.Fatal(err)
	}
	want := snapshotTable(t)
	if err := sw.WriteSnapshot(path, want); err != nil {
		t.Fatal(err)
	}

	sr, err := NewSnapshotReader()
	if err != nil {
		t.Fatal(err)
	}
	got, err := sr.ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}

	if got.Len() != want.Len() {
		t.Fatalf("len = %d, want %d", got.Len(), want.Len())
	}
	for i, ev := range got.Events() {
		orig := want.Events()[i]
		if !ev.Timestamp.Equal(orig.Timestamp) {
			t.Errorf("row %d timestamp = %v, want %v", i, ev.Timestamp, orig.Timestamp)
		}
		if ev.Host != orig.Host || ev.Connector != orig.Connector ||
			ev.Connection != orig.Connection || ev.URL != orig.URL {
			t.Errorf("row %d = %+v, want %+v", i, ev, orig)
		}
	}

	if got.Zone().String() != "Asia/Tokyo" {
		t.Errorf("zone = %q, want Asia/Tokyo", got.Zone())
	}

	gotMin, _ := got.MinTime()
	wantMin, _ := want.MinTime()
	if !gotMin.Equal(wantMin) {
		t.Errorf("min = %v, want %v", gotMin, wantMin)
	}
}

func TestSnapshotEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.evs")

	sw, err := NewSnapshotWriter()
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteSnapshot(path, dataset.NewTable(nil, time.UTC)); err != nil {
		t.Fatal(err)
	}

	sr, err := NewSnapshotReader()
	if err != nil {
		t.Fatal(err)
	}
	got, err := sr.ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 0 {
		t.Errorf("len = %d, want 0", got.Len())
	}
}

func TestReadSnapshotRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.evs")
	if err := os.WriteFile(path, []byte("NOTASNAPSHOTFILE"), 0644); err != nil {
		t.Fatal(err)
	}

	sr, err := NewSnapshotReader()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sr.ReadSnapshot(path); err == nil {
		t.Error("expected error for invalid header")
	}
}

func TestWriteSnapshotLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.evs")

	sw, err := NewSnapshotWriter()
	if err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteSnapshot(path, snapshotTable(t)); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "events.evs" {
		t.Errorf("dir contents = %v, want only events.evs", entries)
	}
}
