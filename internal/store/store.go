// Package store persists the manually maintained error records: a
// primary CSV file plus a timestamped backup copy written on every
// successful append.
package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/errwatch/errwatch/internal/dataset"
)

// Header of the primary CSV file. Column names follow the record-store
// schema; the dataset loader maps them onto the canonical event fields.
var csvHeader = []string{"timestamp", "error_destination", "connector_server", "connection_type"}

// Record is one manually entered error record.
type Record struct {
	Date        time.Time `json:"date"`
	Destination string    `json:"destination"`
	Connector   string    `json:"connector"`
	Connection  string    `json:"connection"`
}

// Store serializes all access to the primary file and its backups.
// Appends and deletes are the only mutators; loads between them always
// see a complete file.
type Store struct {
	path      string
	backupDir string
	zone      *time.Location
	mu        sync.Mutex
}

// Open prepares the store, creating the primary file with its header
// and the backup directory when missing.
func Open(path, backupDir string, zone *time.Location) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		cw := csv.NewWriter(f)
		cw.Write(csvHeader)
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	return &Store{path: path, backupDir: backupDir, zone: zone}, nil
}

// Load reads the primary file into a canonical event table.
func (s *Store) Load() (*dataset.Table, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dataset.LoadFile(s.path, s.zone)
}

// Append writes one record to the primary file, syncs it, then writes a
// timestamped backup copy. The primary write is authoritative: when the
// backup fails the record is kept and the error is returned for the
// caller to surface. Returns the path of the written backup.
func (s *Store) Append(rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	cw := csv.NewWriter(f)
	cw.Write([]string{
		rec.Date.Format(time.DateOnly),
		rec.Destination,
		rec.Connector,
		rec.Connection,
	})
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	backupPath, err := s.writeBackup()
	if err != nil {
		return "", fmt.Errorf("record saved but backup failed: %w", err)
	}
	return backupPath, nil
}

// writeBackup copies the primary file into the backup directory under a
// timestamped name. Backups are historical artifacts; they are never
// read back by the store.
func (s *Store) writeBackup() (string, error) {
	src, err := os.Open(s.path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	// Nanosecond suffix keeps names unique across appends within the
	// same second; every successful append keeps its own artifact.
	now := time.Now()
	name := fmt.Sprintf("records_%s_%09d.csv", now.Format("20060102T150405"), now.Nanosecond())
	path := filepath.Join(s.backupDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

// DeleteLast removes the most recently appended record and persists the
// shortened file atomically (write temp, then rename).
func (s *Store) DeleteLast() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no records to delete")
	}
	rows = rows[:len(rows)-1]

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	cw.Write(csvHeader)
	for _, row := range rows {
		cw.Write(row)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// RowCount returns the number of records (excluding the header).
func (s *Store) RowCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readAll()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) readAll() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	var rows [][]string
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue // header
		}
		rows = append(rows, record)
	}
	return rows, nil
}
