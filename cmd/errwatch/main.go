package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/errwatch/errwatch/internal/cluster"
	"github.com/errwatch/errwatch/internal/controller"
	"github.com/errwatch/errwatch/internal/dataset"
	"github.com/errwatch/errwatch/internal/options"
	"github.com/errwatch/errwatch/internal/pkg/security"
	"github.com/errwatch/errwatch/internal/server"
	"github.com/errwatch/errwatch/internal/storage"
	"github.com/errwatch/errwatch/internal/store"
)

func main() {
	// Command-line flags
	port := flag.Int("port", 8087, "HTTP port to listen on")
	dataDir := flag.String("data", "./data", "Directory for the record store, backups and metadata")
	webDir := flag.String("web", "./web", "Directory for static web files")
	datasetPath := flag.String("dataset", "", "Optional error-report CSV to load at startup")
	zoneName := flag.String("zone", dataset.DefaultZoneName, "Default time zone for naive timestamps")
	nodes := flag.String("nodes", "", "Comma-separated data node URLs (console mode)")
	flag.Parse()

	zone, err := time.LoadLocation(*zoneName)
	if err != nil {
		log.Fatalf("Unknown time zone %q: %v", *zoneName, err)
	}

	log.Println("errwatch v0.1 started...")

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	// 1. Master key and encrypted metadata
	generated, err := security.InitMasterKey(filepath.Join(*dataDir, "master.key"))
	if err != nil {
		log.Fatalf("Master key init failed: %v", err)
	}
	if generated {
		log.Printf("Generated new master key in %s", *dataDir)
	}

	metaStore := controller.NewStore(filepath.Join(*dataDir, "meta.enc"))
	if err := metaStore.Load(); err != nil {
		log.Fatalf("Failed to load metadata: %v", err)
	}

	// 2. Record store (manually maintained error records)
	recordsPath := filepath.Join(*dataDir, "records.csv")
	backupDir := filepath.Join(*dataDir, "backups")
	records, err := store.Open(recordsPath, backupDir, zone)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}

	catalog := options.NewCatalog()
	ds := server.NewDatasets(zone, catalog)

	table, dropped, err := records.Load()
	if err != nil {
		log.Fatalf("Failed to load record store: %v", err)
	}
	ds.SetTable(table, dropped, server.SourceStore)
	log.Printf("Record store loaded: %d rows (%d dropped)", table.Len(), dropped)

	// 3. Optional error-report dataset, with snapshot fast path
	if *datasetPath != "" {
		table, dropped, err := loadDataset(*datasetPath, zone)
		if err != nil {
			log.Fatalf("Failed to load dataset %s: %v", *datasetPath, err)
		}
		ds.SetTable(table, dropped, server.SourceUpload)
		log.Printf("Dataset loaded: %s (%d rows, %d dropped)", *datasetPath, table.Len(), dropped)
	}

	// 4. Backup retention cleaner
	retention := time.Duration(0)
	if raw := metaStore.GetData().Config.BackupRetention; raw != "" {
		retention, err = time.ParseDuration(raw)
		if err != nil {
			log.Printf("Invalid backup retention %q, cleaner disabled", raw)
			retention = 0
		}
	}
	go records.RunCleaner(1*time.Hour, retention)

	// 5. HTTP server
	srv := server.NewServer(ds, records, metaStore, catalog, *webDir, zone)
	if *nodes != "" {
		nodeList := strings.Split(*nodes, ",")
		srv.SetCluster(cluster.NewAggregator(nodeList))
		log.Printf("Console mode: %d data nodes", len(nodeList))
	}
	addr := fmt.Sprintf(":%d", *port)

	go func() {
		log.Printf("Listening on %s", addr)
		log.Printf("Dashboard available at http://localhost%s", addr)
		if err := srv.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 6. Graceful shutdown hook
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal: %v. Shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("errwatch exited gracefully.")
}

// loadDataset loads a CSV dataset, going through its .evs snapshot when
// one exists and is newer than the source file.
func loadDataset(path string, zone *time.Location) (*dataset.Table, int, error) {
	snapPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".evs"

	csvInfo, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", dataset.ErrDataLoad, err)
	}
	if snapInfo, err := os.Stat(snapPath); err == nil && snapInfo.ModTime().After(csvInfo.ModTime()) {
		reader, err := storage.NewSnapshotReader()
		if err == nil {
			if table, err := reader.ReadSnapshot(snapPath); err == nil {
				log.Printf("Loaded snapshot %s", snapPath)
				return table, 0, nil
			}
			log.Printf("Snapshot %s unreadable, falling back to CSV", snapPath)
		}
	}

	table, dropped, err := dataset.LoadFile(path, zone)
	if err != nil {
		return nil, 0, err
	}

	writer, err := storage.NewSnapshotWriter()
	if err == nil {
		if err := writer.WriteSnapshot(snapPath, table); err != nil {
			log.Printf("Snapshot write error: %v", err)
		}
	}
	return table, dropped, nil
}
