// Package projection flattens the PCA score rows of an analysis run
// into 2D map points with t-SNE, for plotting talk neighborhoods.
// Inputs too small to embed fall back to the first two score columns.
package projection

import (
	"context"
	"fmt"
	"math"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"

	"github.com/copperline/tagmap/internal/store"
)

const (
	// DefaultPerplexity is used when none is requested. It is clamped
	// further down for small inputs.
	DefaultPerplexity = 30

	learningRate  = 100
	maxIterations = 300

	// t-SNE needs a few rows and at least two score columns to be
	// meaningful; anything smaller takes the fallback projection.
	minEmbedRows = 4
)

// Options configures a map build.
type Options struct {
	Perplexity float64
}

// Result summarizes a built map.
type Result struct {
	RunID    string
	Points   int
	Embedded bool
}

// Projector builds 2D maps from persisted PCA scores.
type Projector struct {
	st store.Store
}

// NewProjector creates a projector backed by the given store.
func NewProjector(st store.Store) *Projector {
	return &Projector{st: st}
}

// Build embeds the run's score matrix and persists the map points,
// replacing any previous map for the run. An empty run id attaches to
// the latest analysis run.
func (p *Projector) Build(ctx context.Context, runID string, opts Options) (*Result, error) {
	perplexity := opts.Perplexity
	if perplexity <= 0 {
		perplexity = DefaultPerplexity
	}

	run, err := p.st.FindRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolving run: %w", err)
	}
	if run == nil {
		if runID == "" {
			return nil, fmt.Errorf("no analysis runs found (run 'tagmap analyze' first)")
		}
		return nil, fmt.Errorf("run %q not found", runID)
	}

	talkIDs, scores, err := p.st.ScoreMatrix(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("loading score matrix: %w", err)
	}
	if len(talkIDs) == 0 {
		return nil, fmt.Errorf("run %s has no component scores", run.ID)
	}

	columns := len(scores[0])

	var points []store.MapPoint
	embedded := false
	if len(talkIDs) >= minEmbedRows && columns >= 2 {
		points, err = embed(talkIDs, scores, perplexity)
		if err != nil {
			return nil, fmt.Errorf("embedding scores: %w", err)
		}
		embedded = true
	} else {
		points = fallback(talkIDs, scores)
	}

	if err := p.st.SaveMapPoints(ctx, run.ID, points); err != nil {
		return nil, fmt.Errorf("saving map points: %w", err)
	}

	return &Result{RunID: run.ID, Points: len(points), Embedded: embedded}, nil
}

func embed(talkIDs []int64, scores [][]float64, perplexity float64) ([]store.MapPoint, error) {
	n := len(talkIDs)
	columns := len(scores[0])

	data := make([]float64, 0, n*columns)
	for _, row := range scores {
		data = append(data, row...)
	}
	X := mat.NewDense(n, columns, data)

	// Perplexity must stay well below the number of neighbors
	if limit := float64(n-1) / 3.0; perplexity > limit {
		perplexity = limit
	}
	if perplexity < 1 {
		perplexity = 1
	}

	t := tsne.NewTSNE(2, perplexity, learningRate, maxIterations, false)
	t.EmbedData(X, nil)

	rows, cols := t.Y.Dims()
	if rows != n || cols != 2 {
		return nil, fmt.Errorf("embedding has shape %dx%d, want %dx2", rows, cols, n)
	}

	points := make([]store.MapPoint, n)
	for i := 0; i < n; i++ {
		x, y := t.Y.At(i, 0), t.Y.At(i, 1)
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("embedding produced a non-finite coordinate for row %d", i)
		}
		points[i] = store.MapPoint{TalkID: talkIDs[i], X: x, Y: y}
	}
	return points, nil
}

// fallback projects straight onto the first two score columns.
func fallback(talkIDs []int64, scores [][]float64) []store.MapPoint {
	points := make([]store.MapPoint, len(talkIDs))
	for i, id := range talkIDs {
		var x, y float64
		if len(scores[i]) > 0 {
			x = scores[i][0]
		}
		if len(scores[i]) > 1 {
			y = scores[i][1]
		}
		points[i] = store.MapPoint{TalkID: id, X: x, Y: y}
	}
	return points
}
