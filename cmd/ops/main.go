package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dayboard/internal/ops"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "snapshot":
		if err := cmdSnapshot(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot failed:", err)
			os.Exit(1)
		}
	case "verify":
		if err := cmdVerify(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "verify failed:", err)
			os.Exit(1)
		}
	case "prune":
		if err := cmdPrune(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "prune failed:", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(2)
	}
}

func cmdSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	dbPath := fs.String("db", "data/dayboard.db", "path to the dayboard database")
	out := fs.String("out", "", "output snapshot path (.db)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		ts := time.Now().UTC().Format("20060102T150405Z")
		*out = filepath.Join("backups", "dayboard-"+ts+".db")
	}

	if err := ops.SnapshotDatabase(*dbPath, *out); err != nil {
		return err
	}
	stats, err := ops.VerifySnapshot(*out)
	if err != nil {
		return err
	}
	fmt.Println(*out)
	fmt.Printf("tasks=%d recurring_items=%d owners=%d\n", stats.Tasks, stats.RecurringItems, stats.Owners)
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	path := fs.String("snapshot", "", "snapshot file to verify (.db)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("snapshot is required")
	}
	stats, err := ops.VerifySnapshot(*path)
	if err != nil {
		return err
	}
	fmt.Printf("ok tasks=%d recurring_items=%d owners=%d\n", stats.Tasks, stats.RecurringItems, stats.Owners)
	return nil
}

func cmdPrune(args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	dir := fs.String("dir", "backups", "snapshot directory")
	keep := fs.Int("keep", 7, "number of newest snapshots to keep")
	if err := fs.Parse(args); err != nil {
		return err
	}
	removed, err := ops.PruneSnapshots(*dir, *keep)
	if err != nil {
		return err
	}
	for _, name := range removed {
		fmt.Println("removed", name)
	}
	return nil
}

func printUsage() {
	fmt.Println("usage:")
	fmt.Println("  dayboard-ops snapshot --db data/dayboard.db --out backups/snap.db")
	fmt.Println("  dayboard-ops verify   --snapshot backups/snap.db")
	fmt.Println("  dayboard-ops prune    --dir backups --keep 7")
}
