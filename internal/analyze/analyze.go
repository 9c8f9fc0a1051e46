// Package analyze runs the full tag-landscape pipeline over the imported
// talks: indicator matrix, correlation distances, hierarchical clustering,
// and principal components, persisted together as one run.
package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/copperline/tagmap/internal/cluster"
	"github.com/copperline/tagmap/internal/matrix"
	"github.com/copperline/tagmap/internal/pca"
	"github.com/copperline/tagmap/internal/store"
	"github.com/copperline/tagmap/internal/tags"
)

// Defaults mirror the exploratory study this pipeline reproduces: cut the
// dendrogram at 0.40 and keep 16 principal components.
const (
	DefaultCutHeight  = 0.40
	DefaultComponents = 16
)

// Options control one analysis pass.
type Options struct {
	Linkage    cluster.Linkage
	CutHeight  float64
	Components int
	Source     string
}

// Result summarizes a completed analysis run.
type Result struct {
	RunID            string
	Linkage          cluster.Linkage
	CutHeight        float64
	TalkCount        int
	TalksWithoutTags int
	TagCount         int
	DroppedTags      []string
	TagClusters      int
	PCAClusters      int
	Components       int
	Agreement        float64
}

// Runner loads talks from the store, computes a run, and persists it.
type Runner struct {
	st  store.Store
	now time.Time
}

// NewRunner creates a runner over the given store.
func NewRunner(st store.Store) *Runner {
	return &Runner{st: st, now: time.Now().UTC()}
}

// Run executes the pipeline and saves the run snapshot. Both labeling
// variants come from the same dendrogram procedure: one over the
// standardized indicator rows, one over the component scores.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Linkage == "" {
		opts.Linkage = cluster.CompleteLinkage
	}
	if opts.CutHeight <= 0 {
		opts.CutHeight = DefaultCutHeight
	}
	if opts.Components <= 0 {
		opts.Components = DefaultComponents
	}

	talks, err := r.st.ListTalks(ctx)
	if err != nil {
		return nil, err
	}
	if len(talks) < 2 {
		return nil, fmt.Errorf("analysis needs at least 2 talks, have %d (run 'tagmap import' first)", len(talks))
	}
	idByURL := make(map[string]int64, len(talks))
	for _, t := range talks {
		idByURL[t.URL] = t.ID
	}

	stored, err := r.st.AllAssignments(ctx)
	if err != nil {
		return nil, err
	}
	assignments := make([]tags.Assignment, 0, len(stored))
	for _, a := range stored {
		assignments = append(assignments, tags.Assignment{Record: a.URL, Tag: a.Tag})
	}

	dict := tags.NewDictionary(assignments)
	indicator := matrix.BuildIndicator(assignments, dict)
	std, err := matrix.Standardize(indicator)
	if err != nil {
		return nil, fmt.Errorf("standardizing indicator matrix: %w", err)
	}

	tagLabels, err := clusterRows(std.X, opts.Linkage, opts.CutHeight)
	if err != nil {
		return nil, fmt.Errorf("clustering tag space: %w", err)
	}

	reduced, err := pca.Reduce(std.X, opts.Components)
	if err != nil {
		return nil, fmt.Errorf("reducing to components: %w", err)
	}

	pcaLabels, err := clusterRows(reduced.Scores, opts.Linkage, opts.CutHeight)
	if err != nil {
		return nil, fmt.Errorf("clustering component space: %w", err)
	}

	snap := buildSnapshot(uuid.New().String(), r.now, opts, std, reduced, tagLabels, pcaLabels, idByURL)
	if err := r.st.SaveRun(ctx, snap); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	return &Result{
		RunID:            snap.Run.ID,
		Linkage:          opts.Linkage,
		CutHeight:        opts.CutHeight,
		TalkCount:        len(std.Records),
		TalksWithoutTags: len(talks) - len(std.Records),
		TagCount:         len(std.Tags),
		DroppedTags:      std.Dropped,
		TagClusters:      cluster.NumClusters(tagLabels),
		PCAClusters:      cluster.NumClusters(pcaLabels),
		Components:       reduced.Components,
		Agreement:        cluster.RandIndex(tagLabels, pcaLabels),
	}, nil
}

func clusterRows(X *mat.Dense, link cluster.Linkage, height float64) ([]int, error) {
	distances := cluster.CorrelationDistances(X)
	dendro, err := cluster.Agglomerate(distances, link)
	if err != nil {
		return nil, err
	}
	return dendro.Cut(height), nil
}

func buildSnapshot(runID string, created time.Time, opts Options, std *matrix.Standardized,
	reduced *pca.Result, tagLabels, pcaLabels []int, idByURL map[string]int64) *store.RunSnapshot {

	snap := &store.RunSnapshot{
		Run: store.Run{
			ID:          runID,
			CreatedAt:   created,
			Source:      opts.Source,
			Linkage:     string(opts.Linkage),
			CutHeight:   opts.CutHeight,
			Components:  reduced.Components,
			TalkCount:   len(std.Records),
			TagCount:    len(std.Tags),
			DroppedTags: std.Dropped,
		},
	}

	for i, url := range std.Records {
		talkID := idByURL[url]
		snap.Labels = append(snap.Labels,
			store.Label{Variant: store.VariantTags, TalkID: talkID, Cluster: tagLabels[i]},
			store.Label{Variant: store.VariantPCA, TalkID: talkID, Cluster: pcaLabels[i]},
		)
		for j := 0; j < reduced.Components; j++ {
			snap.Scores = append(snap.Scores, store.Score{
				TalkID:  talkID,
				Ordinal: j + 1,
				Value:   reduced.Scores.At(i, j),
			})
		}
	}

	for j := 0; j < reduced.Components; j++ {
		snap.Components = append(snap.Components, store.ComponentStat{
			Ordinal:  j + 1,
			Variance: reduced.Variances[j],
			Fraction: reduced.VarianceFractions[j],
		})
		for i, tag := range std.Tags {
			snap.Loadings = append(snap.Loadings, store.Loading{
				Ordinal: j + 1,
				Tag:     tag,
				Weight:  reduced.Loadings.At(i, j),
			})
		}
	}

	return snap
}
