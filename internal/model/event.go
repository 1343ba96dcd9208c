package model

import "time"

// Event represents one observed monitoring error.
// This is the canonical row shape shared by both data sources: the
// uploaded error report (host/url/connector) and the manually maintained
// record store (destination/connector server/connection type). Fields a
// source does not carry stay empty.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Host       string    `json:"host"`       // host / error destination
	Connector  string    `json:"connector"`  // connector / connector server
	Connection string    `json:"connection"` // connection type (record store only)
	URL        string    `json:"url"`        // free text (error report only)
}

// Dimension identifies a categorical grouping axis.
type Dimension string

const (
	DimNone       Dimension = ""
	DimHost       Dimension = "host"
	DimConnector  Dimension = "connector"
	DimConnection Dimension = "connection"
)

// Value returns the event's value for the given dimension.
func (e *Event) Value(d Dimension) string {
	switch d {
	case DimHost:
		return e.Host
	case DimConnector:
		return e.Connector
	case DimConnection:
		return e.Connection
	default:
		return ""
	}
}

// ParseDimension maps a user-supplied dimension name to a Dimension.
// Aliases cover both source schemas.
func ParseDimension(s string) (Dimension, bool) {
	switch s {
	case "", "none", "all":
		return DimNone, true
	case "host", "destination", "error_destination":
		return DimHost, true
	case "connector", "connector_server":
		return DimConnector, true
	case "connection", "connection_type", "type":
		return DimConnection, true
	}
	return DimNone, false
}

// DefaultConnectionTypes is the fixed option set for the record store's
// connection type field.
var DefaultConnectionTypes = []string{"有線", "無線", "専用線", "その他"}

// ValidConnectionType reports whether v is one of the fixed options.
func ValidConnectionType(v string) bool {
	for _, t := range DefaultConnectionTypes {
		if v == t {
			return true
		}
	}
	return false
}
