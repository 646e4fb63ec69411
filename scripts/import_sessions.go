package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/config"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store"
)

// SessionImport is one row of the seed CSV:
// session_id,allies,adversaries,shown
type SessionImport struct {
	SessionID   string
	Allies      int
	Adversaries int
	Shown       bool
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	csvPath := "data/sessions.csv"
	if flag.NArg() > 0 {
		csvPath = flag.Arg(0)
	}
	absPath, err := filepath.Abs(csvPath)
	if err != nil {
		log.Fatalf("Failed to get absolute path: %v", err)
	}

	fmt.Println("=== Group Advantage Session Import ===")
	fmt.Printf("CSV file: %s\n", absPath)

	file, err := os.Open(absPath)
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer file.Close()

	rows, skipped, err := parseSessions(file)
	if err != nil {
		log.Fatalf("Failed to read CSV: %v", err)
	}
	fmt.Printf("Parsed %d sessions (%d rows skipped)\n", len(rows), skipped)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage.Driver == config.DriverMemory {
		log.Fatal("Importing into the memory driver has no effect; configure sqlite or postgres")
	}

	backend, err := store.Open(ctx, cfg.Storage, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer backend.Close()
	fmt.Printf("✓ %s store ready\n", cfg.Storage.Driver)

	imported, failed := 0, 0
	startTime := time.Now()
	for _, row := range rows {
		if err := importSession(ctx, backend, row); err != nil {
			log.Printf("Failed to import session %s: %v", row.SessionID, err)
			failed++
			continue
		}
		imported++
	}

	fmt.Println("\n=== Import Complete ===")
	fmt.Printf("✓ Successfully imported: %d sessions\n", imported)
	if failed > 0 {
		fmt.Printf("✗ Failed: %d sessions\n", failed)
	}
	fmt.Printf("Duration: %v\n", time.Since(startTime).Round(time.Millisecond))
}

// parseSessions reads rows after the header, skipping malformed ones.
func parseSessions(r io.Reader) ([]SessionImport, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(records) < 2 {
		return nil, 0, fmt.Errorf("CSV file is empty or has no data rows")
	}

	rows := make([]SessionImport, 0, len(records)-1)
	skipped := 0
	for i, record := range records[1:] { // Skip header
		row, err := parseSession(record)
		if err != nil {
			log.Printf("Warning: Skipping row %d - %v", i+2, err)
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func parseSession(record []string) (SessionImport, error) {
	if len(record) < 3 {
		return SessionImport{}, fmt.Errorf("insufficient columns")
	}
	id := strings.TrimSpace(record[0])
	if !session.ValidID(id) {
		return SessionImport{}, session.ErrInvalidSessionID
	}
	allies, err := parseCount(record[1])
	if err != nil {
		return SessionImport{}, fmt.Errorf("allies: %w", err)
	}
	adversaries, err := parseCount(record[2])
	if err != nil {
		return SessionImport{}, fmt.Errorf("adversaries: %w", err)
	}
	row := SessionImport{SessionID: id, Allies: allies, Adversaries: adversaries}
	if len(record) > 3 {
		row.Shown = parseBool(record[3])
	}
	return row, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, advantage.ErrNegativeResult
	}
	return n, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

func importSession(ctx context.Context, s advantage.Store, row SessionImport) error {
	if err := s.Set(ctx, row.SessionID, advantage.Allies, row.Allies); err != nil {
		return err
	}
	if err := s.Set(ctx, row.SessionID, advantage.Adversaries, row.Adversaries); err != nil {
		return err
	}
	return s.SetVisibility(ctx, row.SessionID, row.Shown)
}
