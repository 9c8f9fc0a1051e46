// Package pca extracts principal components from a standardized indicator
// matrix: per-component variance shares, tag loadings, and record scores.
package pca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Result holds one principal decomposition. Components is the effective
// count after truncation against the factorization width; Variances and
// VarianceFractions are descending and fractions are taken against the
// total variance of every component, so they sum to at most 1.
type Result struct {
	Components        int
	Variances         []float64
	VarianceFractions []float64
	Loadings          *mat.Dense // variables x components
	Scores            *mat.Dense // records x components
}

// Reduce computes the first k principal components of X. Requesting more
// components than the factorization provides (min of rows and columns)
// truncates to what exists rather than erroring or padding.
func Reduce(X *mat.Dense, k int) (*Result, error) {
	if X == nil {
		return nil, fmt.Errorf("pca: nil matrix")
	}
	rows, cols := X.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("pca: need at least 2 rows, have %d", rows)
	}
	if k < 1 {
		return nil, fmt.Errorf("pca: component count must be positive, got %d", k)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return nil, fmt.Errorf("pca: factorization failed")
	}

	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	eff := k
	if eff > len(vars) {
		eff = len(vars)
	}

	total := 0.0
	for _, v := range vars {
		total += v
	}

	variances := make([]float64, eff)
	fractions := make([]float64, eff)
	for i := 0; i < eff; i++ {
		variances[i] = vars[i]
		if total > 0 {
			fractions[i] = vars[i] / total
		}
	}

	loadings := mat.NewDense(cols, eff, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < eff; j++ {
			loadings.Set(i, j, vecs.At(i, j))
		}
	}

	var scores mat.Dense
	scores.Mul(X, loadings)

	return &Result{
		Components:        eff,
		Variances:         variances,
		VarianceFractions: fractions,
		Loadings:          loadings,
		Scores:            &scores,
	}, nil
}
