package analyze

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/copperline/tagmap/internal/cluster"
	"github.com/copperline/tagmap/internal/dataset"
	"github.com/copperline/tagmap/internal/store"
)

func newAnalyzeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func importFixture(t *testing.T, ctx context.Context, s store.Store, talks []dataset.Talk) {
	t.Helper()
	if _, err := s.ImportTalks(ctx, talks); err != nil {
		t.Fatalf("ImportTalks: %v", err)
	}
}

func disjointFixture() []dataset.Talk {
	return []dataset.Talk{
		{URL: "https://example.org/t/solar", Title: "Sailing on sunlight", RawTags: "['space', 'physics']"},
		{URL: "https://example.org/t/orbits", Title: "Orbits for beginners", RawTags: "['space', 'physics']"},
		{URL: "https://example.org/t/standup", Title: "An evening of jokes", RawTags: "['comedy']"},
	}
}

func TestRunSeparatesDisjointTagSets(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	importFixture(t, ctx, s, disjointFixture())

	result, err := NewRunner(s).Run(ctx, Options{Source: "fixture.csv"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.RunID == "" {
		t.Fatal("expected a run id")
	}
	if result.TalkCount != 3 || result.TagCount != 3 {
		t.Errorf("counts = %d talks / %d tags, want 3 / 3", result.TalkCount, result.TagCount)
	}
	if len(result.DroppedTags) != 0 {
		t.Errorf("DroppedTags = %v, want none", result.DroppedTags)
	}
	if result.TagClusters != 2 {
		t.Errorf("TagClusters = %d, want 2", result.TagClusters)
	}
	if result.PCAClusters != 2 {
		t.Errorf("PCAClusters = %d, want 2", result.PCAClusters)
	}
	if math.Abs(result.Agreement-1.0) > 1e-9 {
		t.Errorf("Agreement = %v, want 1.0", result.Agreement)
	}

	// The two space talks share a cluster; the comedy talk sits alone.
	talks, err := s.ListTalks(ctx)
	if err != nil {
		t.Fatalf("ListTalks: %v", err)
	}
	labeling, err := s.Labeling(ctx, result.RunID, store.VariantTags)
	if err != nil {
		t.Fatalf("Labeling: %v", err)
	}
	if labeling[talks[0].ID] != labeling[talks[1].ID] {
		t.Errorf("space talks split: %d vs %d", labeling[talks[0].ID], labeling[talks[1].ID])
	}
	if labeling[talks[2].ID] == labeling[talks[0].ID] {
		t.Errorf("comedy talk merged with space talks: cluster %d", labeling[talks[2].ID])
	}
	for _, talk := range talks {
		if labeling[talk.ID] < 1 {
			t.Errorf("cluster id for %s = %d, want positive", talk.URL, labeling[talk.ID])
		}
	}
}

func TestRunAppliesDefaults(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	importFixture(t, ctx, s, disjointFixture())

	result, err := NewRunner(s).Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Linkage != cluster.CompleteLinkage {
		t.Errorf("Linkage = %q, want complete", result.Linkage)
	}
	if result.CutHeight != DefaultCutHeight {
		t.Errorf("CutHeight = %v, want %v", result.CutHeight, DefaultCutHeight)
	}
	// Sixteen components requested by default, but only three tags exist,
	// so the run truncates to what the data supports.
	if result.Components != 3 {
		t.Errorf("Components = %d, want 3", result.Components)
	}

	run, err := s.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Linkage != "complete" || run.CutHeight != DefaultCutHeight || run.Components != 3 {
		t.Errorf("persisted run = %+v", run)
	}
}

func TestRunPersistsArtifacts(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	importFixture(t, ctx, s, disjointFixture())

	result, err := NewRunner(s).Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest == nil || latest.ID != result.RunID {
		t.Fatalf("latest run = %+v, want %s", latest, result.RunID)
	}

	comps, err := s.ComponentSummary(ctx, result.RunID)
	if err != nil {
		t.Fatalf("ComponentSummary: %v", err)
	}
	if len(comps) != result.Components {
		t.Fatalf("component rows = %d, want %d", len(comps), result.Components)
	}
	total := 0.0
	for i, c := range comps {
		if i > 0 && c.Fraction > comps[i-1].Fraction+1e-12 {
			t.Errorf("fractions increase at ordinal %d: %v", c.Ordinal, comps)
		}
		total += c.Fraction
	}
	if total > 1.0+1e-9 {
		t.Errorf("fraction total = %v, want <= 1", total)
	}

	talkIDs, scores, err := s.ScoreMatrix(ctx, result.RunID)
	if err != nil {
		t.Fatalf("ScoreMatrix: %v", err)
	}
	if len(talkIDs) != 3 {
		t.Fatalf("score rows = %d, want 3", len(talkIDs))
	}
	for i, row := range scores {
		if len(row) != result.Components {
			t.Errorf("score row %d has %d columns, want %d", i, len(row), result.Components)
		}
	}

	loadings, err := s.RunLoadings(ctx, result.RunID)
	if err != nil {
		t.Fatalf("RunLoadings: %v", err)
	}
	if len(loadings) != result.TagCount*result.Components {
		t.Errorf("loading rows = %d, want %d", len(loadings), result.TagCount*result.Components)
	}
}

func TestRunRequiresImportedTalks(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()

	_, err := NewRunner(s).Run(ctx, Options{})
	if err == nil {
		t.Fatal("expected error on empty store")
	}
	if !strings.Contains(err.Error(), "at least 2 talks") {
		t.Errorf("error = %v, want talk-count hint", err)
	}
}

func TestRunSkipsUntaggedTalks(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	fixture := append(disjointFixture(), dataset.Talk{
		URL: "https://example.org/t/silent", Title: "A quiet one", RawTags: "[]",
	})
	importFixture(t, ctx, s, fixture)

	result, err := NewRunner(s).Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TalkCount != 3 {
		t.Errorf("TalkCount = %d, want 3", result.TalkCount)
	}
	if result.TalksWithoutTags != 1 {
		t.Errorf("TalksWithoutTags = %d, want 1", result.TalksWithoutTags)
	}

	labeling, err := s.Labeling(ctx, result.RunID, store.VariantTags)
	if err != nil {
		t.Fatalf("Labeling: %v", err)
	}
	if len(labeling) != 3 {
		t.Errorf("labeled talks = %d, want 3", len(labeling))
	}
}

func TestRunDropsUbiquitousTag(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	importFixture(t, ctx, s, []dataset.Talk{
		{URL: "https://example.org/t/solar", Title: "Sailing on sunlight", RawTags: "['ted', 'space', 'physics']"},
		{URL: "https://example.org/t/orbits", Title: "Orbits for beginners", RawTags: "['ted', 'space', 'physics']"},
		{URL: "https://example.org/t/standup", Title: "An evening of jokes", RawTags: "['ted', 'comedy']"},
	})

	result, err := NewRunner(s).Run(ctx, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 'ted' appears on every talk: its indicator column never varies, so it
	// cannot be standardized and is dropped from the analysis.
	if len(result.DroppedTags) != 1 || result.DroppedTags[0] != "ted" {
		t.Errorf("DroppedTags = %v, want [ted]", result.DroppedTags)
	}
	if result.TagCount != 3 {
		t.Errorf("TagCount = %d, want 3 kept tags", result.TagCount)
	}
	if result.TagClusters != 2 {
		t.Errorf("TagClusters = %d, want 2", result.TagClusters)
	}

	run, err := s.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(run.DroppedTags) != 1 || run.DroppedTags[0] != "ted" {
		t.Errorf("persisted DroppedTags = %v, want [ted]", run.DroppedTags)
	}
}

func TestRunAverageLinkage(t *testing.T) {
	s := newAnalyzeStore(t)
	ctx := context.Background()
	importFixture(t, ctx, s, disjointFixture())

	result, err := NewRunner(s).Run(ctx, Options{Linkage: cluster.AverageLinkage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	run, err := s.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Linkage != "average" {
		t.Errorf("persisted linkage = %q, want average", run.Linkage)
	}
	if result.TagClusters != 2 {
		t.Errorf("TagClusters = %d, want 2 under average linkage", result.TagClusters)
	}
}
