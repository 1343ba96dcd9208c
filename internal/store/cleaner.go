package store

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// RunCleaner periodically compacts aged backup files. Backups older than
// retention are zstd-compressed in place (the artifact persists, only
// smaller); retention <= 0 disables compaction.
func (s *Store) RunCleaner(interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Backup cleaner started. Retention: %v, Interval: %v", retention, interval)

	for range ticker.C {
		if retention <= 0 {
			continue
		}
		s.compactAgedBackups(retention)
	}
}

func (s *Store) compactAgedBackups(retention time.Duration) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("Cleaner error: failed to read backup dir: %v", err)
		return
	}

	threshold := time.Now().Add(-retention)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(threshold) {
			continue
		}

		path := filepath.Join(s.backupDir, name)
		if err := compressFile(path); err != nil {
			log.Printf("Cleaner error: failed to compress %s: %v", name, err)
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Cleaner error: failed to delete %s: %v", name, err)
		} else {
			log.Printf("Aged backup compacted: %s", name)
		}
	}
}

// compressFile writes path + ".zst" next to the original.
func compressFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(data, make([]byte, 0, len(data)))
	enc.Close()
	return os.WriteFile(path+".zst", compressed, 0644)
}
