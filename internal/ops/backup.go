package ops

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SnapshotDatabase writes a consistent copy of the dayboard database to
// outPath using VACUUM INTO. Safe to run against a live database; the
// snapshot is a plain sqlite file with no WAL sidecar.
func SnapshotDatabase(dbPath, outPath string) error {
	dbPath = filepath.Clean(strings.TrimSpace(dbPath))
	outPath = filepath.Clean(strings.TrimSpace(outPath))
	if dbPath == "" || outPath == "" {
		return fmt.Errorf("dbPath and outPath are required")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("snapshot target already exists: %s", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec("VACUUM INTO ?", outPath); err != nil {
		return fmt.Errorf("vacuum into %s: %w", outPath, err)
	}
	return nil
}

// SnapshotStats summarizes a verified snapshot.
type SnapshotStats struct {
	Tasks          int
	RecurringItems int
	Owners         int
}

// VerifySnapshot runs an integrity check against a snapshot file and
// returns row counts, so a backup job can fail loudly on a bad copy.
func VerifySnapshot(path string) (SnapshotStats, error) {
	var stats SnapshotStats

	db, err := sql.Open("sqlite3", filepath.Clean(path)+"?mode=ro")
	if err != nil {
		return stats, err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return stats, err
	}
	if result != "ok" {
		return stats, fmt.Errorf("integrity check failed: %s", result)
	}

	if err := db.QueryRow("SELECT count(*) FROM tasks").Scan(&stats.Tasks); err != nil {
		return stats, err
	}
	if err := db.QueryRow("SELECT count(*) FROM recurring_items").Scan(&stats.RecurringItems); err != nil {
		return stats, err
	}
	if err := db.QueryRow("SELECT count(DISTINCT owner_id) FROM tasks").Scan(&stats.Owners); err != nil {
		return stats, err
	}
	return stats, nil
}

// PruneSnapshots deletes the oldest .db snapshots in dir, keeping the
// newest keep files by name. Snapshot names embed a UTC timestamp so
// lexicographic order is chronological.
func PruneSnapshots(dir string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) <= keep {
		return nil, nil
	}

	var removed []string
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}
