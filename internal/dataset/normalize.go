package dataset

import (
	"strings"
	"time"

	"github.com/errwatch/errwatch/internal/model"
)

// DefaultZoneName is assumed for timestamps that carry no zone info.
const DefaultZoneName = "Asia/Tokyo"

// RawRow is one unvalidated input row as read from the source.
type RawRow struct {
	Timestamp  string
	Host       string
	URL        string
	Connector  string
	Connection string
}

// Layouts with explicit zone info are tried first; the rest are wall
// clocks resolved in the normalizer's zone.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// Normalizer turns raw rows into canonical events.
type Normalizer struct {
	Zone *time.Location
}

// NewNormalizer creates a Normalizer for the given default zone.
// A nil zone falls back to Asia/Tokyo, then UTC if unavailable.
func NewNormalizer(zone *time.Location) *Normalizer {
	if zone == nil {
		var err error
		zone, err = time.LoadLocation(DefaultZoneName)
		if err != nil {
			zone = time.UTC
		}
	}
	return &Normalizer{Zone: zone}
}

// Normalize parses and cleans raw rows. Rows whose timestamp cannot be
// parsed (or resolves to an ambiguous local time) are dropped; the
// dropped count is returned alongside the table. String fields are
// trimmed. The returned table contains no zero timestamps.
func (n *Normalizer) Normalize(rows []RawRow) (*Table, int) {
	events := make([]model.Event, 0, len(rows))
	dropped := 0
	for i := range rows {
		ts, ok := n.ParseTimestamp(rows[i].Timestamp)
		if !ok {
			dropped++
			continue
		}
		events = append(events, model.Event{
			Timestamp:  ts,
			Host:       strings.TrimSpace(rows[i].Host),
			URL:        strings.TrimSpace(rows[i].URL),
			Connector:  strings.TrimSpace(rows[i].Connector),
			Connection: strings.TrimSpace(rows[i].Connection),
		})
	}
	return NewTable(events, n.Zone), dropped
}

// ParseTimestamp parses a single timestamp string. Zoned layouts keep
// their offset (converted to the normalizer's zone for display); naive
// layouts are resolved as wall clocks in the normalizer's zone.
func (n *Normalizer) ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(n.Zone), true
		}
	}
	for _, layout := range naiveLayouts {
		if w, err := time.Parse(layout, s); err == nil {
			return resolveWall(w, n.Zone)
		}
	}
	return time.Time{}, false
}

// resolveWall maps a wall-clock reading onto an instant in loc.
// Ambiguous wall times (the clock showed this reading twice around a
// backward transition) are treated as missing. Nonexistent wall times
// (skipped by a forward transition) shift to the first valid instant
// after the gap.
func resolveWall(w time.Time, loc *time.Location) (time.Time, bool) {
	t := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
	if sameWall(t, w) {
		// Transitions shift by 30 or 60 minutes; probing those offsets
		// finds any second instant with the same reading.
		for _, d := range []time.Duration{-time.Hour, -30 * time.Minute, 30 * time.Minute, time.Hour} {
			if sameWall(t.Add(d), w) {
				return time.Time{}, false
			}
		}
		return t, true
	}
	return gapEnd(t), true
}

func sameWall(t, w time.Time) bool {
	return t.Year() == w.Year() && t.Month() == w.Month() && t.Day() == w.Day() &&
		t.Hour() == w.Hour() && t.Minute() == w.Minute() && t.Second() == w.Second()
}

// gapEnd locates the zone transition nearest to t and returns its end,
// i.e. the first instant on the new offset. t is the stdlib's
// normalization of a nonexistent reading, so the transition sits within
// a few hours of it.
func gapEnd(t time.Time) time.Time {
	lo := t.Add(-6 * time.Hour)
	hi := t.Add(6 * time.Hour)
	_, offLo := lo.Zone()
	if _, offHi := hi.Zone(); offHi == offLo {
		return t
	}
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.Zone(); off == offLo {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Round(time.Second)
}
