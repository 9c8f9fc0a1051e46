// Package report assembles read-only summaries of the tagmap store.
//
// Two core capabilities:
// - Stats: corpus-wide counts, the most frequent tags, storage size
// - RunReport: one analysis run unpacked into cluster tables, the
//   variance ladder, and the agreement between the two labelings
//
// This package answers the question: "What did the analysis find?"
package report

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/copperline/tagmap/internal/cluster"
	"github.com/copperline/tagmap/internal/store"
)

const (
	topTagsPerCluster = 5
	topTagsOverall    = 10
)

// Stats holds corpus-wide aggregates for observability.
type Stats struct {
	Talks        int64            `json:"talks"`
	Assignments  int64            `json:"assignments"`
	DistinctTags int64            `json:"distinct_tags"`
	Runs         int64            `json:"runs"`
	StorageBytes int64            `json:"storage_bytes"`
	TopTags      []store.TagCount `json:"top_tags,omitempty"`
}

// ClusterRow is one cluster in a labeling: its id, size, and the tags
// most common among its members.
type ClusterRow struct {
	Cluster int      `json:"cluster"`
	Size    int      `json:"size"`
	TopTags []string `json:"top_tags,omitempty"`
}

// VarianceRow is one principal component's share of total variance.
type VarianceRow struct {
	Component  int     `json:"component"`
	Variance   float64 `json:"variance"`
	Fraction   float64 `json:"fraction"`
	Cumulative float64 `json:"cumulative"`
}

// RunReport unpacks one analysis run for display.
type RunReport struct {
	Run         store.Run     `json:"run"`
	TagClusters []ClusterRow  `json:"tag_clusters"`
	PCAClusters []ClusterRow  `json:"pca_clusters"`
	Variance    []VarianceRow `json:"variance"`
	Agreement   float64       `json:"agreement"`
}

// Engine provides reporting over a tagmap store.
type Engine struct {
	store  store.Store
	dbPath string
}

// NewEngine creates a new reporting engine.
func NewEngine(s store.Store, dbPath string) *Engine {
	return &Engine{
		store:  s,
		dbPath: dbPath,
	}
}

// GetStats returns corpus-wide statistics.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	storeStats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting store stats: %w", err)
	}

	stats := &Stats{
		Talks:        storeStats.TalkCount,
		Assignments:  storeStats.AssignmentCount,
		DistinctTags: storeStats.DistinctTags,
		Runs:         storeStats.RunCount,
		StorageBytes: storeStats.DBSizeBytes,
	}

	// Fall back to the file size if the store doesn't report one
	if stats.StorageBytes == 0 && e.dbPath != "" && e.dbPath != ":memory:" {
		if info, err := os.Stat(e.dbPath); err == nil {
			stats.StorageBytes = info.Size()
		}
	}

	top, err := e.store.TopTags(ctx, topTagsOverall)
	if err != nil {
		return nil, fmt.Errorf("getting top tags: %w", err)
	}
	stats.TopTags = top

	return stats, nil
}

// GetRunReport assembles the full report for a run. An empty id falls
// back to the latest run; a unique id prefix is accepted.
func (e *Engine) GetRunReport(ctx context.Context, runID string) (*RunReport, error) {
	run, err := e.store.FindRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolving run: %w", err)
	}
	if run == nil {
		if runID == "" {
			return nil, fmt.Errorf("no analysis runs found (run 'tagmap analyze' first)")
		}
		return nil, fmt.Errorf("run %q not found", runID)
	}

	rep := &RunReport{Run: *run}

	rep.TagClusters, err = e.clusterRows(ctx, run.ID, store.VariantTags)
	if err != nil {
		return nil, err
	}
	rep.PCAClusters, err = e.clusterRows(ctx, run.ID, store.VariantPCA)
	if err != nil {
		return nil, err
	}

	comps, err := e.store.ComponentSummary(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("loading variance table: %w", err)
	}
	cumulative := 0.0
	rep.Variance = make([]VarianceRow, 0, len(comps))
	for _, c := range comps {
		cumulative += c.Fraction
		rep.Variance = append(rep.Variance, VarianceRow{
			Component:  c.Ordinal,
			Variance:   c.Variance,
			Fraction:   c.Fraction,
			Cumulative: cumulative,
		})
	}

	rep.Agreement, err = e.agreement(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	return rep, nil
}

func (e *Engine) clusterRows(ctx context.Context, runID, variant string) ([]ClusterRow, error) {
	sizes, err := e.store.ClusterSizes(ctx, runID, variant)
	if err != nil {
		return nil, fmt.Errorf("loading %s cluster sizes: %w", variant, err)
	}

	rows := make([]ClusterRow, 0, len(sizes))
	for _, cs := range sizes {
		counts, err := e.store.ClusterTopTags(ctx, runID, variant, cs.Cluster, topTagsPerCluster)
		if err != nil {
			return nil, fmt.Errorf("loading top tags for %s cluster %d: %w", variant, cs.Cluster, err)
		}
		names := make([]string, 0, len(counts))
		for _, tc := range counts {
			names = append(names, tc.Tag)
		}
		rows = append(rows, ClusterRow{Cluster: cs.Cluster, Size: cs.Size, TopTags: names})
	}
	return rows, nil
}

// agreement joins the two labelings on talk id and scores how often they
// place a pair of talks the same way.
func (e *Engine) agreement(ctx context.Context, runID string) (float64, error) {
	tagLabels, err := e.store.Labeling(ctx, runID, store.VariantTags)
	if err != nil {
		return 0, fmt.Errorf("loading tag labeling: %w", err)
	}
	pcaLabels, err := e.store.Labeling(ctx, runID, store.VariantPCA)
	if err != nil {
		return 0, fmt.Errorf("loading pca labeling: %w", err)
	}

	ids := make([]int64, 0, len(tagLabels))
	for id := range tagLabels {
		if _, ok := pcaLabels[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	a := make([]int, len(ids))
	b := make([]int, len(ids))
	for i, id := range ids {
		a[i] = tagLabels[id]
		b[i] = pcaLabels[id]
	}
	return cluster.RandIndex(a, b), nil
}
