// Package options tracks the distinct values of each categorical
// dimension in the loaded dataset. The filter UI pre-populates its
// multi-selects from here, and appends validate their enum fields
// against it.
package options

import (
	"sync"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
)

// Catalog is the in-memory registry of known dimension values, kept in
// first-seen order.
type Catalog struct {
	mu     sync.RWMutex
	values map[model.Dimension][]string
	seen   map[model.Dimension]map[string]bool

	connectionTypes []string
}

// NewCatalog creates an empty catalog with the fixed connection-type
// option set.
func NewCatalog() *Catalog {
	c := &Catalog{
		connectionTypes: model.DefaultConnectionTypes,
	}
	c.resetLocked()
	return c
}

func (c *Catalog) resetLocked() {
	c.values = make(map[model.Dimension][]string)
	c.seen = make(map[model.Dimension]map[string]bool)
}

// Rebuild replaces the catalog contents with the values observed in the
// given table.
func (c *Catalog) Rebuild(t *dataset.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	events := t.Events()
	for i := range events {
		c.observeLocked(&events[i])
	}
}

// Observe records one event's values, e.g. after an append.
func (c *Catalog) Observe(ev *model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observeLocked(ev)
}

func (c *Catalog) observeLocked(ev *model.Event) {
	for _, dim := range []model.Dimension{model.DimHost, model.DimConnector, model.DimConnection} {
		v := ev.Value(dim)
		if v == "" {
			continue
		}
		set, ok := c.seen[dim]
		if !ok {
			set = make(map[string]bool)
			c.seen[dim] = set
		}
		if !set[v] {
			set[v] = true
			c.values[dim] = append(c.values[dim], v)
		}
	}
}

// Values returns the known values for one dimension in first-seen order.
func (c *Catalog) Values(dim model.Dimension) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.values[dim]))
	copy(out, c.values[dim])
	return out
}

// ConnectionTypes returns the fixed option set for the append form.
func (c *Catalog) ConnectionTypes() []string {
	out := make([]string, len(c.connectionTypes))
	copy(out, c.connectionTypes)
	return out
}

// All returns every dimension's values keyed by dimension name,
// alongside the fixed connection-type options.
func (c *Catalog) All() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.values)+1)
	for dim, vals := range c.values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		out[string(dim)] = copied
	}
	out["connection_types"] = c.ConnectionTypes()
	return out
}
