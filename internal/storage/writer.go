// Package storage reads and writes .evs snapshot files: a columnar,
// zstd-compressed image of a normalized event table. Snapshots exist so
// a restart can skip re-parsing the source CSV.
package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/errwatch/errwatch/internal/dataset"
)

// MagicHeader identifies .evs snapshot files.
var MagicHeader = []byte("ERRWEVS1")

type SnapshotWriter struct {
	encoder *zstd.Encoder
}

func NewSnapshotWriter() (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{encoder: enc}, nil
}

// WriteSnapshot writes the table to path. Layout:
// header, zone name, five compressed columns, footer.
func (sw *SnapshotWriter) WriteSnapshot(path string, t *dataset.Table) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}

	// Zone name, length-prefixed, uncompressed.
	zone := t.Zone().String()
	if err := binary.Write(f, binary.LittleEndian, uint16(len(zone))); err != nil {
		return err
	}
	if _, err := f.Write([]byte(zone)); err != nil {
		return err
	}

	events := t.Events()
	tsCol := make([]int64, len(events))
	hostCol := make([]string, len(events))
	connCol := make([]string, len(events))
	typeCol := make([]string, len(events))
	urlCol := make([]string, len(events))
	for i := range events {
		tsCol[i] = events[i].Timestamp.UnixNano()
		hostCol[i] = events[i].Host
		connCol[i] = events[i].Connector
		typeCol[i] = events[i].Connection
		urlCol[i] = events[i].URL
	}

	if err := sw.writeInt64Col(f, tsCol); err != nil {
		return err
	}
	for _, col := range [][]string{hostCol, connCol, typeCol, urlCol} {
		if err := sw.writeStringCol(f, col); err != nil {
			return err
		}
	}

	var minTs, maxTs int64
	if min, ok := t.MinTime(); ok {
		minTs = min.UnixNano()
	}
	if max, ok := t.MaxTime(); ok {
		maxTs = max.UnixNano()
	}
	if err := writeFooter(f, uint32(len(events)), minTs, maxTs); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (sw *SnapshotWriter) writeInt64Col(f *os.File, data []int64) error {
	buf := new(bytes.Buffer)
	for _, v := range data {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

// String columns serialize as repeated [Len uint32][Bytes].
func (sw *SnapshotWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	for _, s := range data {
		b := []byte(s)
		binary.Write(buf, binary.LittleEndian, uint32(len(b)))
		buf.Write(b)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *SnapshotWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := f.Write(compressed)
	return err
}

// Footer: RowCount (4) + MinTs (8) + MaxTs (8).
func writeFooter(f *os.File, rowCount uint32, minTs, maxTs int64) error {
	if err := binary.Write(f, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minTs); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, maxTs)
}
