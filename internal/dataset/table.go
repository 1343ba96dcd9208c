package dataset

import (
	"time"

	"github.com/errwatch/errwatch/internal/model"
)

// Table is the canonical event table produced by one load. It is
// immutable: every report computation reads it, none mutate it. A new
// load builds a new Table.
type Table struct {
	events []model.Event
	minTs  time.Time
	maxTs  time.Time
	zone   *time.Location
}

// NewTable wraps normalized events. Input order is preserved; it defines
// the first-appearance order used for deterministic tie-breaking
// downstream. The caller must not retain the slice.
func NewTable(events []model.Event, zone *time.Location) *Table {
	t := &Table{events: events, zone: zone}
	for i := range events {
		ts := events[i].Timestamp
		if t.minTs.IsZero() || ts.Before(t.minTs) {
			t.minTs = ts
		}
		if t.maxTs.IsZero() || ts.After(t.maxTs) {
			t.maxTs = ts
		}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.events)
}

// Events exposes the backing rows. Read-only by contract.
func (t *Table) Events() []model.Event {
	return t.events
}

// MinTime returns the earliest timestamp, and false when the table is empty.
func (t *Table) MinTime() (time.Time, bool) {
	return t.minTs, !t.minTs.IsZero()
}

// MaxTime returns the latest timestamp, and false when the table is empty.
func (t *Table) MaxTime() (time.Time, bool) {
	return t.maxTs, !t.maxTs.IsZero()
}

// Zone is the display zone all rows were normalized into.
func (t *Table) Zone() *time.Location {
	if t.zone == nil {
		return time.UTC
	}
	return t.zone
}
