package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/copperline/tagmap/internal/analyze"
	"github.com/copperline/tagmap/internal/cluster"
	"github.com/copperline/tagmap/internal/config"
	"github.com/copperline/tagmap/internal/mcp"
	"github.com/copperline/tagmap/internal/report"
	"github.com/copperline/tagmap/internal/store"
)

const version = "0.1.0-dev"

var (
	globalDBPath  string
	globalVerbose bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "import":
		err = runImport(args[1:])
	case "analyze":
		err = runAnalyze(args[1:])
	case "report":
		err = runReport(args[1:])
	case "export":
		err = runExport(args[1:])
	case "topics":
		err = runTopics(args[1:])
	case "map":
		err = runMap(args[1:])
	case "stats":
		err = runStats(args[1:])
	case "config":
		err = runConfig(args[1:])
	case "demo":
		err = runDemo(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "version", "--version", "-v":
		fmt.Printf("tagmap %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		fmt.Fprintf(os.Stderr, "\nHint: Run `tagmap help` for usage and examples.\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := remediationHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// parseGlobalFlags strips the global flags out of the argument list and
// records them in package globals. Everything else passes through in order.
func parseGlobalFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(args[i], "--db="):
			globalDBPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--verbose":
			globalVerbose = true
		default:
			out = append(out, args[i])
		}
	}
	return out
}

// getDBPath resolves the database path: --db flag, then TAGMAP_DB, then the
// config file. Empty string means the store default.
func getDBPath() string {
	if globalDBPath != "" {
		return expandUserPath(globalDBPath)
	}
	if env := strings.TrimSpace(os.Getenv("TAGMAP_DB")); env != "" {
		return expandUserPath(env)
	}
	if cfg, err := config.ResolveConfig(config.ResolveOptions{}); err == nil && cfg.DBPath.Value != "" {
		return cfg.DBPath.Value
	}
	return ""
}

func expandUserPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				return home
			}
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func openStore() (store.Store, error) {
	s, err := store.NewStore(store.StoreConfig{DBPath: getDBPath()})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// remediationHint maps common failures to a one-line fix suggestion.
// Returns "" when there is nothing actionable to add.
func remediationHint(err error) string {
	if err == nil {
		return ""
	}
	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "usage:"),
		strings.Contains(lower, "unknown flag"),
		strings.Contains(lower, "flag provided but not defined"),
		strings.Contains(lower, "unknown argument"),
		strings.Contains(lower, "unexpected argument"):
		return "Run `tagmap help` for usage and examples."
	case strings.Contains(lower, "database is locked"):
		return "Another process is using this DB. Close other tagmap instances (including `tagmap serve`) and retry."
	case strings.Contains(lower, "not a database"):
		return "Database appears corrupted or stale. Move the file aside and run `tagmap import` again, or point --db at a fresh path."
	case strings.Contains(lower, "read-only"):
		return "The database is read-only. Check file permissions or copy it to a writable location."
	case strings.Contains(lower, "opening store"):
		if strings.Contains(lower, "no such file or directory") {
			return "The database does not exist yet. Run `tagmap import <file.csv>` to create it."
		}
		if path := getDBPath(); path != "" {
			return fmt.Sprintf("Verify the DB path is valid and writable: %s", path)
		}
		return "Set --db <path> to choose a database location, and check permissions on ~/.tagmap."
	}
	return ""
}

func runStats(args []string) error {
	jsonOut := false
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	engine := report.NewEngine(s, getDBPath())
	stats, err := engine.GetStats(context.Background())
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Talks:         %d\n", stats.Talks)
	fmt.Printf("Assignments:   %d\n", stats.Assignments)
	fmt.Printf("Distinct tags: %d\n", stats.DistinctTags)
	fmt.Printf("Runs:          %d\n", stats.Runs)
	fmt.Printf("Storage:       %s\n", formatBytes(stats.StorageBytes))

	if len(stats.TopTags) > 0 {
		fmt.Println("\nTop tags:")
		for _, tc := range stats.TopTags {
			fmt.Printf("  %-24s %d\n", tc.Tag, tc.Count)
		}
	}
	if stats.Runs == 0 && stats.Talks > 0 {
		fmt.Println("\nNext: tagmap analyze")
	}
	return nil
}

func runConfig(args []string) error {
	jsonOut := false
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonOut = true
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: globalDBPath})
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	rows := []struct {
		key string
		val config.ResolvedValue
	}{
		{"db_path", cfg.DBPath.Effective(store.DefaultDBPath)},
		{"linkage", cfg.Linkage.Effective(string(cluster.CompleteLinkage))},
		{"cut_height", cfg.CutHeight.Effective(fmt.Sprintf("%.2f", analyze.DefaultCutHeight))},
		{"components", cfg.Components.Effective(strconv.Itoa(analyze.DefaultComponents))},
		{"id_column", cfg.IDColumn.Effective("url")},
		{"tags_column", cfg.TagsColumn.Effective("tags")},
		{"title_column", cfg.TitleColumn.Effective("title")},
	}

	fmt.Printf("Config file: %s\n\n", cfg.ConfigPath)
	fmt.Printf("%-14s %-32s %-8s %s\n", "KEY", "VALUE", "SOURCE", "FROM")
	for _, r := range rows {
		fmt.Printf("%-14s %-32s %-8s %s\n", r.key, r.val.Value, r.val.Source, r.val.From)
	}
	return nil
}

func runServe(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:   s,
		DBPath:  getDBPath(),
		Version: version,
	})

	if globalVerbose {
		fmt.Fprintln(os.Stderr, "tagmap MCP server listening on stdio")
	}
	if err := mcpserver.ServeStdio(srv); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Printf(`tagmap %s — Tag co-occurrence analysis for talk metadata

Usage:
  tagmap [--db <path>] <command> [arguments]

Commands:
  import <file>       Import talks and their tag lists from a CSV/TSV file
  analyze             Cluster the tag landscape two ways and persist a run
  report              Show a run: clusters, variance ladder, agreement
  export              Write run artifacts as CSV or JSON
  topics              Fit an LDA topic model over the tag lists
  map                 Project component scores to 2-D map points
  stats               Show corpus statistics and storage size
  config              Show effective configuration and value provenance
  demo                Run the full pipeline against a temporary database
  serve               Serve analysis results over MCP (stdio)
  version             Print version

Import Flags:
  --id-col <name>     Identifier column (default: url)
  --tags-col <name>   Tag-list column (default: tags)
  --title-col <name>  Title column (default: title)

Analyze Flags:
  --linkage <name>    complete or average (default: complete)
  --cut <height>      Dendrogram cut height (default: 0.40)
  --components <n>    Principal components to keep (default: 16)

Global Flags:
  --db <path>         Database path (default: ~/.tagmap/tagmap.db)
  --verbose           Verbose output
  -h, --help          Show this help message
  -v, --version       Print version

Environment:
  TAGMAP_DB           Database path override
`, version)
}
