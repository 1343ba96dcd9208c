package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrDataLoad marks whole-input failures: unreadable input or a missing
// timestamp column. Row-level problems never produce it.
var ErrDataLoad = errors.New("dataset load failed")

// column indexes resolved from the header row. -1 means absent.
type columnMap struct {
	timestamp  int
	host       int
	url        int
	connector  int
	connection int
}

func resolveColumns(header []string) (columnMap, error) {
	cm := columnMap{timestamp: -1, host: -1, url: -1, connector: -1, connection: -1}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		switch name {
		case "timestamp", "date", "datetime":
			cm.timestamp = i
		case "host", "error_destination", "destination":
			cm.host = i
		case "url":
			cm.url = i
		case "connector", "connector_server":
			cm.connector = i
		case "connection_type", "connection":
			cm.connection = i
		}
	}
	if cm.timestamp == -1 {
		return cm, fmt.Errorf("%w: no timestamp column in header %v", ErrDataLoad, header)
	}
	return cm, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// ReadCSV reads raw rows from CSV input. The first row is the header;
// recognized columns are mapped by name, unknown columns are ignored.
func ReadCSV(r io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataLoad, err)
	}
	cm, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataLoad, err)
		}
		rows = append(rows, RawRow{
			Timestamp:  field(record, cm.timestamp),
			Host:       field(record, cm.host),
			URL:        field(record, cm.url),
			Connector:  field(record, cm.connector),
			Connection: field(record, cm.connection),
		})
	}
	return rows, nil
}

// Load reads CSV input and normalizes it into a canonical table,
// returning the number of rows dropped for unusable timestamps.
func Load(r io.Reader, zone *time.Location) (*Table, int, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, 0, err
	}
	table, dropped := NewNormalizer(zone).Normalize(rows)
	return table, dropped, nil
}

// LoadFile loads a CSV dataset from disk.
func LoadFile(path string, zone *time.Location) (*Table, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDataLoad, err)
	}
	defer f.Close()
	return Load(f, zone)
}
