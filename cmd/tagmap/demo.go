package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func runDemo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	dbPathFlag := fs.String("db", "", "Path to demo SQLite DB (default: temp file)")
	cleanup := fs.Bool("cleanup", false, "Delete demo files/DB after completion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("usage: tagmap demo [--db <path>] [--cleanup]")
	}

	dbPath := strings.TrimSpace(*dbPathFlag)
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), fmt.Sprintf("tagmap-demo-%d.db", time.Now().UnixNano()))
	} else {
		dbPath = expandUserPath(dbPath)
	}

	csvPath, err := createDemoCSV()
	if err != nil {
		return err
	}

	fmt.Println("🧪 tagmap demo")
	fmt.Printf("Demo file: %s\n", csvPath)
	fmt.Printf("Demo DB:   %s\n\n", dbPath)

	oldDBPath := globalDBPath
	globalDBPath = dbPath
	defer func() { globalDBPath = oldDBPath }()

	fmt.Println("Step 1/3: Import sample talks")
	if err := runImport([]string{csvPath}); err != nil {
		if *cleanup {
			_ = cleanupDemoArtifacts(csvPath, dbPath)
		}
		return fmt.Errorf("demo import failed: %w", err)
	}

	fmt.Println("\nStep 2/3: Analyze the tag landscape")
	if err := runAnalyze([]string{"--components", "4", "--source", "demo"}); err != nil {
		if *cleanup {
			_ = cleanupDemoArtifacts(csvPath, dbPath)
		}
		return fmt.Errorf("demo analyze failed: %w", err)
	}

	fmt.Println("\nStep 3/3: Report the latest run")
	if err := runReport([]string{}); err != nil {
		return fmt.Errorf("demo report failed: %w", err)
	}

	fmt.Println("\n✅ Demo complete.")
	fmt.Println("Your turn:")
	fmt.Printf("  tagmap --db %s report --variant pca\n", dbPath)
	fmt.Printf("  tagmap --db %s topics\n", dbPath)
	fmt.Printf("  tagmap --db %s stats\n", dbPath)
	if !*cleanup {
		fmt.Println("\nInspection paths (kept):")
		fmt.Printf("  csv: %s\n", csvPath)
		fmt.Printf("  db:  %s\n", dbPath)
		fmt.Println("Use --cleanup to auto-delete these next run.")
	} else {
		if err := cleanupDemoArtifacts(csvPath, dbPath); err != nil {
			return fmt.Errorf("demo cleanup failed: %w", err)
		}
		fmt.Println("\nTemporary demo files cleaned up.")
	}

	return nil
}

// createDemoCSV writes a small talk export with three visible tag
// neighborhoods (go/concurrency, ml/statistics, frontend/css) so the
// clustering step has structure to find.
func createDemoCSV() (string, error) {
	rows := []string{
		`url,title,tags`,
		`https://talks.example/go-sched,Inside the Go scheduler,"['go', 'concurrency', 'runtime']"`,
		`https://talks.example/go-channels,Channels in anger,"['go', 'concurrency', 'patterns']"`,
		`https://talks.example/go-gc,Garbage collection pauses,"['go', 'runtime', 'performance']"`,
		`https://talks.example/pca-intro,PCA from scratch,"['statistics', 'linear-algebra', 'ml']"`,
		`https://talks.example/cluster-talk,Hierarchies of everything,"['statistics', 'clustering', 'ml']"`,
		`https://talks.example/bayes,Priors in production,"['statistics', 'ml', 'bayesian']"`,
		`https://talks.example/css-grid,Grid layouts that last,"['css', 'frontend', 'design']"`,
		`https://talks.example/css-anim,Animation on a budget,"['css', 'frontend', 'performance']"`,
		`https://talks.example/web-a11y,Accessible by default,"['frontend', 'design', 'accessibility']"`,
		`https://talks.example/untagged,The mystery talk,"[]"`,
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("tagmap-demo-%d.csv", time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing demo csv: %w", err)
	}
	return path, nil
}

func cleanupDemoArtifacts(csvPath, dbPath string) error {
	paths := []string{csvPath, dbPath, dbPath + "-wal", dbPath + "-shm"}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
