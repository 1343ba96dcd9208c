package options

import (
	"reflect"
	"testing"
	"time"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
)

func catalogTable() *dataset.Table {
	events := []model.Event{
		{Timestamp: time.Now(), Host: "web-02", Connector: "gw1", Connection: "有線"},
		{Timestamp: time.Now(), Host: "web-01", Connector: "gw1", Connection: "無線"},
		{Timestamp: time.Now(), Host: "web-02", Connector: "gw2"},
	}
	return dataset.NewTable(events, time.UTC)
}

func TestCatalogRebuild(t *testing.T) {
	c := NewCatalog()
	c.Rebuild(catalogTable())

	// First-seen order, duplicates collapsed, blanks skipped.
	if got := c.Values(model.DimHost); !reflect.DeepEqual(got, []string{"web-02", "web-01"}) {
		t.Errorf("hosts = %v", got)
	}
	if got := c.Values(model.DimConnector); !reflect.DeepEqual(got, []string{"gw1", "gw2"}) {
		t.Errorf("connectors = %v", got)
	}
	if got := c.Values(model.DimConnection); !reflect.DeepEqual(got, []string{"有線", "無線"}) {
		t.Errorf("connections = %v", got)
	}
}

func TestCatalogRebuildReplaces(t *testing.T) {
	c := NewCatalog()
	c.Rebuild(catalogTable())

	fresh := dataset.NewTable([]model.Event{
		{Timestamp: time.Now(), Host: "other"},
	}, time.UTC)
	c.Rebuild(fresh)

	if got := c.Values(model.DimHost); !reflect.DeepEqual(got, []string{"other"}) {
		t.Errorf("hosts after rebuild = %v", got)
	}
}

func TestCatalogObserve(t *testing.T) {
	c := NewCatalog()
	c.Rebuild(catalogTable())

	c.Observe(&model.Event{Host: "web-09", Connector: "gw1", Connection: "有線"})

	hosts := c.Values(model.DimHost)
	if hosts[len(hosts)-1] != "web-09" {
		t.Errorf("new host not appended: %v", hosts)
	}
	if got := c.Values(model.DimConnector); len(got) != 2 {
		t.Errorf("known connector re-added: %v", got)
	}
}

func TestCatalogConnectionTypesFixed(t *testing.T) {
	c := NewCatalog()
	got := c.ConnectionTypes()
	if !reflect.DeepEqual(got, model.DefaultConnectionTypes) {
		t.Errorf("connection types = %v", got)
	}
	// Mutating the returned slice must not affect the catalog.
	got[0] = "changed"
	if c.ConnectionTypes()[0] == "changed" {
		t.Error("ConnectionTypes returned an aliased slice")
	}
}

func TestCatalogAll(t *testing.T) {
	c := NewCatalog()
	c.Rebuild(catalogTable())

	all := c.All()
	if _, ok := all["connection_types"]; !ok {
		t.Error("All missing connection_types")
	}
	if len(all[string(model.DimHost)]) != 2 {
		t.Errorf("All hosts = %v", all[string(model.DimHost)])
	}
}
