package server

import (
	"io"
	"sync"
	"time"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/options"
)

// DataSource says where the active table came from.
type DataSource string

const (
	SourceNone   DataSource = "none"
	SourceStore  DataSource = "store"  // the persistent record store
	SourceUpload DataSource = "upload" // an uploaded error report CSV
)

// Datasets holds the active canonical table. The table pointer is
// swapped whole on every load; computations grab it once and work on an
// immutable value.
type Datasets struct {
	mu      sync.RWMutex
	table   *dataset.Table
	dropped int
	source  DataSource
	zone    *time.Location
	catalog *options.Catalog
}

func NewDatasets(zone *time.Location, catalog *options.Catalog) *Datasets {
	return &Datasets{
		table:   dataset.NewTable(nil, zone),
		source:  SourceNone,
		zone:    zone,
		catalog: catalog,
	}
}

// Table returns the active table and the row-loss count of its load.
func (d *Datasets) Table() (*dataset.Table, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table, d.dropped
}

// Source reports where the active table came from.
func (d *Datasets) Source() DataSource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

// SetTable swaps in a new canonical table and rebuilds the value catalog.
func (d *Datasets) SetTable(t *dataset.Table, dropped int, source DataSource) {
	d.mu.Lock()
	d.table = t
	d.dropped = dropped
	d.source = source
	d.mu.Unlock()
	d.catalog.Rebuild(t)
}

// LoadUpload normalizes an uploaded CSV body and makes it the active
// table. Returns the dropped row count.
func (d *Datasets) LoadUpload(r io.Reader) (int, int, error) {
	table, dropped, err := dataset.Load(r, d.zone)
	if err != nil {
		return 0, 0, err
	}
	d.SetTable(table, dropped, SourceUpload)
	return table.Len(), dropped, nil
}
