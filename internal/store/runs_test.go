package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

// seedRun stores a full snapshot for the seeded fixture talks.
func seedRun(t *testing.T, ctx context.Context, s Store, talks []Talk, id string, created time.Time) {
	t.Helper()
	snap := &RunSnapshot{
		Run: Run{
			ID:          id,
			CreatedAt:   created,
			Source:      "talks.csv",
			Linkage:     "complete",
			CutHeight:   0.4,
			Components:  2,
			TalkCount:   len(talks),
			TagCount:    7,
			DroppedTags: []string{"ted"},
		},
		Labels: []Label{
			{Variant: VariantTags, TalkID: talks[0].ID, Cluster: 1},
			{Variant: VariantTags, TalkID: talks[1].ID, Cluster: 1},
			{Variant: VariantTags, TalkID: talks[2].ID, Cluster: 2},
			{Variant: VariantTags, TalkID: talks[3].ID, Cluster: 3},
			{Variant: VariantPCA, TalkID: talks[0].ID, Cluster: 1},
			{Variant: VariantPCA, TalkID: talks[1].ID, Cluster: 2},
			{Variant: VariantPCA, TalkID: talks[2].ID, Cluster: 2},
			{Variant: VariantPCA, TalkID: talks[3].ID, Cluster: 2},
		},
		Components: []ComponentStat{
			{Ordinal: 1, Variance: 1.9, Fraction: 0.55},
			{Ordinal: 2, Variance: 1.1, Fraction: 0.30},
		},
		Loadings: []Loading{
			{Ordinal: 1, Tag: "biology", Weight: 0.9},
			{Ordinal: 1, Tag: "music", Weight: -0.95},
			{Ordinal: 1, Tag: "design", Weight: 0.1},
			{Ordinal: 2, Tag: "cities", Weight: 0.8},
			{Ordinal: 2, Tag: "technology", Weight: -0.2},
		},
		Scores: []Score{
			{TalkID: talks[0].ID, Ordinal: 1, Value: 1.2},
			{TalkID: talks[0].ID, Ordinal: 2, Value: -0.3},
			{TalkID: talks[1].ID, Ordinal: 1, Value: 0.8},
			{TalkID: talks[1].ID, Ordinal: 2, Value: 0.9},
			{TalkID: talks[2].ID, Ordinal: 1, Value: -1.4},
			{TalkID: talks[2].ID, Ordinal: 2, Value: 0.2},
			{TalkID: talks[3].ID, Ordinal: 1, Value: -0.6},
			{TalkID: talks[3].ID, Ordinal: 2, Value: -0.8},
		},
	}
	if err := s.SaveRun(ctx, snap); err != nil {
		t.Fatalf("SaveRun(%s): %v", id, err)
	}
}

func TestSaveRunAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	seedRun(t, ctx, s, talks, "11111111-aaaa-bbbb-cccc-000000000001", created)

	run, err := s.GetRun(ctx, "11111111-aaaa-bbbb-cccc-000000000001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("expected run, got nil")
	}
	if run.Linkage != "complete" || run.CutHeight != 0.4 || run.Components != 2 {
		t.Errorf("run parameters = %+v", run)
	}
	if run.TalkCount != 4 || run.TagCount != 7 {
		t.Errorf("run counts = %d talks / %d tags, want 4 / 7", run.TalkCount, run.TagCount)
	}
	if len(run.DroppedTags) != 1 || run.DroppedTags[0] != "ted" {
		t.Errorf("DroppedTags = %v, want [ted]", run.DroppedTags)
	}
	if run.CreatedAt.Unix() != created.Unix() {
		t.Errorf("CreatedAt = %v, want %v", run.CreatedAt, created)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.GetRun(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for missing run, got %+v", run)
	}
}

func TestLatestRunEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil on empty store, got %+v", run)
	}
}

func TestLatestRunPicksNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedRun(t, ctx, s, talks, "aaaa1111-0000-0000-0000-000000000001", base)
	seedRun(t, ctx, s, talks, "bbbb2222-0000-0000-0000-000000000002", base.Add(time.Hour))

	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run == nil || run.ID != "bbbb2222-0000-0000-0000-000000000002" {
		t.Fatalf("latest run = %+v, want the newer one", run)
	}
}

func TestFindRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedRun(t, ctx, s, talks, "aaaa1111-0000-0000-0000-000000000001", base)
	seedRun(t, ctx, s, talks, "aaaa2222-0000-0000-0000-000000000002", base.Add(time.Hour))

	t.Run("empty resolves to latest", func(t *testing.T) {
		run, err := s.FindRun(ctx, "")
		if err != nil {
			t.Fatalf("FindRun: %v", err)
		}
		if run == nil || run.ID != "aaaa2222-0000-0000-0000-000000000002" {
			t.Fatalf("FindRun(\"\") = %+v, want latest", run)
		}
	})

	t.Run("exact id", func(t *testing.T) {
		run, err := s.FindRun(ctx, "aaaa1111-0000-0000-0000-000000000001")
		if err != nil {
			t.Fatalf("FindRun: %v", err)
		}
		if run == nil || run.ID != "aaaa1111-0000-0000-0000-000000000001" {
			t.Fatalf("exact lookup = %+v", run)
		}
	})

	t.Run("unique prefix", func(t *testing.T) {
		run, err := s.FindRun(ctx, "aaaa1111")
		if err != nil {
			t.Fatalf("FindRun: %v", err)
		}
		if run == nil || run.ID != "aaaa1111-0000-0000-0000-000000000001" {
			t.Fatalf("prefix lookup = %+v", run)
		}
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := s.FindRun(ctx, "aaaa")
		if err == nil {
			t.Fatal("expected error for ambiguous prefix")
		}
		if !strings.Contains(err.Error(), "ambiguous") {
			t.Errorf("error = %v, want mention of ambiguity", err)
		}
	})

	t.Run("unknown prefix", func(t *testing.T) {
		run, err := s.FindRun(ctx, "zzzz")
		if err != nil {
			t.Fatalf("FindRun: %v", err)
		}
		if run != nil {
			t.Fatalf("expected nil for unknown prefix, got %+v", run)
		}
	})
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedRun(t, ctx, s, talks, "aaaa1111-0000-0000-0000-000000000001", base)
	seedRun(t, ctx, s, talks, "bbbb2222-0000-0000-0000-000000000002", base.Add(time.Hour))
	seedRun(t, ctx, s, talks, "cccc3333-0000-0000-0000-000000000003", base.Add(2*time.Hour))

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "cccc3333-0000-0000-0000-000000000003" {
		t.Errorf("first run = %s, want newest", runs[0].ID)
	}
	if runs[1].ID != "bbbb2222-0000-0000-0000-000000000002" {
		t.Errorf("second run = %s, want middle", runs[1].ID)
	}
}

func TestSaveRunRequiresID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, &RunSnapshot{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestLabelingVariantsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	seedRun(t, ctx, s, talks, "run-0001", time.Now().UTC())

	tagLabels, err := s.Labeling(ctx, "run-0001", VariantTags)
	if err != nil {
		t.Fatalf("Labeling(tags): %v", err)
	}
	pcaLabels, err := s.Labeling(ctx, "run-0001", VariantPCA)
	if err != nil {
		t.Fatalf("Labeling(pca): %v", err)
	}

	if len(tagLabels) != 4 || len(pcaLabels) != 4 {
		t.Fatalf("label counts = %d / %d, want 4 / 4", len(tagLabels), len(pcaLabels))
	}
	if tagLabels[talks[1].ID] != 1 {
		t.Errorf("tags labeling for bridges = %d, want 1", tagLabels[talks[1].ID])
	}
	if pcaLabels[talks[1].ID] != 2 {
		t.Errorf("pca labeling for bridges = %d, want 2", pcaLabels[talks[1].ID])
	}
}

func TestClusterSizesLargestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	seedRun(t, ctx, s, talks, "run-0001", time.Now().UTC())

	sizes, err := s.ClusterSizes(ctx, "run-0001", VariantPCA)
	if err != nil {
		t.Fatalf("ClusterSizes: %v", err)
	}
	if len(sizes) != 2 {
		t.Fatalf("expected 2 pca clusters, got %d", len(sizes))
	}
	if sizes[0].Cluster != 2 || sizes[0].Size != 3 {
		t.Errorf("largest cluster = %+v, want cluster 2 with 3 members", sizes[0])
	}
	if sizes[1].Cluster != 1 || sizes[1].Size != 1 {
		t.Errorf("smallest cluster = %+v, want cluster 1 with 1 member", sizes[1])
	}
}

func TestClusterMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	seedRun(t, ctx, s, talks, "run-0001", time.Now().UTC())

	members, err := s.ClusterMembers(ctx, "run-0001", VariantTags, 1, 0)
	if err != nil {
		t.Fatalf("ClusterMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("cluster 1 members = %d, want 2", len(members))
	}
	if members[0].URL != talks[0].URL || members[1].URL != talks[1].URL {
		t.Errorf("members = %v, want axolotl then bridges", members)
	}
}

func TestClusterTopTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	talks := seedTalks(t, ctx, s)
	seedRun(t, ctx, s, talks, "run-0001", time.Now().UTC())

	// Cluster 1 holds axolotl + bridges: five distinct tags, one use each,
	// so ties break alphabetically.
	top, err := s.ClusterTopTags(ctx, "run-0001", VariantTags, 1, 3)
	if err != nil {
		t.Fatalf("ClusterTopTags: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("top tags = %d entries, want 3", len(top))
	}
	want := []string{"architecture", "biology", "brain science"}
	for i := range want {
		if top[i].Tag != want[i] || top[i].Count != 1 {
			t.Errorf("top[%d] = %+v, want {%s 1}", i, top[i], want[i])
		}
	}
}
