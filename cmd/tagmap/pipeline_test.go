package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/copperline/tagmap/internal/report"
)

// End-to-end pass through the command surface: import a small CSV, run the
// analysis, then read it back via report, export, and stats.
func TestCommands_ImportAnalyzeReport(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	os.Unsetenv("TAGMAP_DB")

	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "tagmap.db")
	oldDBPath := globalDBPath
	globalDBPath = dbPath
	t.Cleanup(func() { globalDBPath = oldDBPath })

	csvPath := filepath.Join(tmp, "talks.csv")
	fixture := strings.Join([]string{
		`url,title,tags`,
		`https://example.org/t1,First,"['go', 'testing']"`,
		`https://example.org/t2,Second,"['go', 'testing']"`,
		`https://example.org/t3,Third,"['css']"`,
		``,
	}, "\n")
	if err := os.WriteFile(csvPath, []byte(fixture), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	out := captureStdout(func() {
		if err := runImport([]string{csvPath}); err != nil {
			t.Errorf("runImport: %v", err)
		}
	})
	if !strings.Contains(out, "Imported 3 talks") {
		t.Fatalf("unexpected import output:\n%s", out)
	}

	out = captureStdout(func() {
		if err := runAnalyze([]string{"--components", "2", "--source", "test"}); err != nil {
			t.Errorf("runAnalyze: %v", err)
		}
	})
	if !strings.Contains(out, "Tag clusters: 2") {
		t.Fatalf("expected 2 tag clusters in analyze output:\n%s", out)
	}

	// Report as JSON (stdout is a pipe here, so json is the default format).
	var rep report.RunReport
	out = captureStdout(func() {
		if err := runReport([]string{}); err != nil {
			t.Errorf("runReport: %v", err)
		}
	})
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report json: %v\nout=%s", err, out)
	}
	if rep.Run.Source != "test" || rep.Run.TalkCount != 3 {
		t.Fatalf("unexpected run row: %+v", rep.Run)
	}
	if len(rep.TagClusters) != 2 {
		t.Fatalf("expected 2 tag clusters, got %+v", rep.TagClusters)
	}
	sizes := map[int]bool{}
	for _, c := range rep.TagClusters {
		sizes[c.Size] = true
	}
	if !sizes[2] || !sizes[1] {
		t.Fatalf("expected cluster sizes {2, 1}, got %+v", rep.TagClusters)
	}

	// The co-tagged pair lands together; the lone css talk stands alone.
	exportPath := filepath.Join(tmp, "labels.json")
	captureStdout(func() {
		if err := runExport([]string{"--what", "labelings", "--format", "json", "--out", exportPath}); err != nil {
			t.Errorf("runExport: %v", err)
		}
	})
	b, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var labeled []struct {
		URL        string `json:"url"`
		TagCluster int    `json:"tag_cluster"`
	}
	if err := json.Unmarshal(b, &labeled); err != nil {
		t.Fatalf("decode export json: %v\nout=%s", err, string(b))
	}
	byURL := map[string]int{}
	for _, l := range labeled {
		byURL[l.URL] = l.TagCluster
	}
	if byURL["https://example.org/t1"] != byURL["https://example.org/t2"] {
		t.Errorf("co-tagged talks split across clusters: %v", byURL)
	}
	if byURL["https://example.org/t1"] == byURL["https://example.org/t3"] {
		t.Errorf("unrelated talk joined the pair's cluster: %v", byURL)
	}

	out = captureStdout(func() {
		if err := runStats([]string{"--json"}); err != nil {
			t.Errorf("runStats: %v", err)
		}
	})
	var stats report.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats json: %v\nout=%s", err, out)
	}
	if stats.Talks != 3 || stats.DistinctTags != 3 || stats.Runs != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunAnalyze_RejectsUnknownLinkage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := runAnalyze([]string{"--linkage", "ward"}); err == nil {
		t.Fatal("expected error for unsupported linkage")
	}
}

func TestRunReport_NoRuns(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	oldDBPath := globalDBPath
	globalDBPath = dbPath
	t.Cleanup(func() { globalDBPath = oldDBPath })

	err := runReport([]string{})
	if err == nil || !strings.Contains(err.Error(), "no analysis runs") {
		t.Fatalf("expected 'no analysis runs' error, got %v", err)
	}
}
