package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/model"
)

var ErrInvalidHeader = errors.New("invalid .evs file header")

type SnapshotReader struct {
	decoder *zstd.Decoder
}

func NewSnapshotReader() (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec}, nil
}

// ReadSnapshot rebuilds an event table from a .evs file.
func (sr *SnapshotReader) ReadSnapshot(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, MagicHeader) {
		return nil, ErrInvalidHeader
	}

	var zoneLen uint16
	if err := binary.Read(f, binary.LittleEndian, &zoneLen); err != nil {
		return nil, err
	}
	zoneName := make([]byte, zoneLen)
	if _, err := io.ReadFull(f, zoneName); err != nil {
		return nil, err
	}
	zone, err := time.LoadLocation(string(zoneName))
	if err != nil {
		zone = time.UTC
	}

	// Footer: RowCount(4) + MinTs(8) + MaxTs(8) = 20 bytes at EOF.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	footer := make([]byte, 20)
	if info.Size() < int64(len(MagicHeader)+2+int(zoneLen)+20) {
		return nil, errors.New("snapshot file too small")
	}
	if _, err := f.ReadAt(footer, info.Size()-20); err != nil {
		return nil, err
	}
	rowCount := int(binary.LittleEndian.Uint32(footer[0:4]))

	tsRaw, err := sr.readBlock(f)
	if err != nil {
		return nil, err
	}
	tsCol, err := decodeInt64Col(tsRaw, rowCount)
	if err != nil {
		return nil, err
	}

	cols := make([][]string, 4)
	for i := range cols {
		raw, err := sr.readBlock(f)
		if err != nil {
			return nil, err
		}
		cols[i], err = decodeStringCol(raw, rowCount)
		if err != nil {
			return nil, err
		}
	}

	events := make([]model.Event, rowCount)
	for i := 0; i < rowCount; i++ {
		events[i] = model.Event{
			Timestamp:  time.Unix(0, tsCol[i]).In(zone),
			Host:       cols[0][i],
			Connector:  cols[1][i],
			Connection: cols[2][i],
			URL:        cols[3][i],
		}
	}
	return dataset.NewTable(events, zone), nil
}

// readBlock reads one [Size uint32][zstd data] frame and decompresses it.
func (sr *SnapshotReader) readBlock(f *os.File) ([]byte, error) {
	var size uint32
	if err := binary.Read(f, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, err
	}
	return sr.decoder.DecodeAll(compressed, nil)
}

func decodeInt64Col(raw []byte, rowCount int) ([]int64, error) {
	if len(raw) != rowCount*8 {
		return nil, fmt.Errorf("timestamp column size mismatch: %d bytes for %d rows", len(raw), rowCount)
	}
	col := make([]int64, rowCount)
	for i := 0; i < rowCount; i++ {
		col[i] = int64(binary.LittleEndian.Uint64(raw[i*8 : i*8+8]))
	}
	return col, nil
}

func decodeStringCol(raw []byte, rowCount int) ([]string, error) {
	col := make([]string, 0, rowCount)
	pos := 0
	for len(col) < rowCount {
		if pos+4 > len(raw) {
			return nil, errors.New("string column truncated")
		}
		n := int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if pos+n > len(raw) {
			return nil, errors.New("string column truncated")
		}
		col = append(col, string(raw[pos:pos+n]))
		pos += n
	}
	return col, nil
}
