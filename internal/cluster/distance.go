// Package cluster computes correlation dissimilarities between matrix rows
// and groups them by agglomerative linkage with a fixed-height tree cut.
package cluster

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// maxCorrelationDistance is assigned against zero-variance rows, whose
// Pearson correlation is undefined. 1-r never exceeds this value.
const maxCorrelationDistance = 2.0

// Condensed is the strict upper triangle of a symmetric pairwise distance
// matrix over n units, stored row-major. The diagonal is implicitly zero.
type Condensed struct {
	n int
	d []float64
}

// NewCondensed returns an all-zero condensed matrix over n units.
func NewCondensed(n int) *Condensed {
	return &Condensed{n: n, d: make([]float64, n*(n-1)/2)}
}

// N returns the number of units.
func (c *Condensed) N() int { return c.n }

// Len returns the number of stored pairwise entries, n*(n-1)/2.
func (c *Condensed) Len() int { return len(c.d) }

// At returns the distance between units i and j in either order.
func (c *Condensed) At(i, j int) float64 {
	if i == j {
		return 0
	}
	return c.d[condensedIndex(c.n, i, j)]
}

func (c *Condensed) set(i, j int, v float64) {
	c.d[condensedIndex(c.n, i, j)] = v
}

// Square expands the condensed form into a full symmetric matrix.
func (c *Condensed) Square() *mat.Dense {
	m := mat.NewDense(c.n, c.n, nil)
	for i := 0; i < c.n-1; i++ {
		for j := i + 1; j < c.n; j++ {
			v := c.At(i, j)
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
	return m
}

func condensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + (j - i - 1)
}

// CorrelationDistances computes 1 - Pearson correlation between every pair
// of rows of X. A row with zero variance has no defined correlation; it is
// held at the metric's maximum distance from every other row so indexing
// stays aligned with the caller's row keys.
func CorrelationDistances(X mat.Matrix) *Condensed {
	rows, _ := X.Dims()
	c := NewCondensed(rows)

	data := make([][]float64, rows)
	constant := make([]bool, rows)
	for i := 0; i < rows; i++ {
		data[i] = mat.Row(nil, i, X)
		constant[i] = isConstant(data[i])
	}

	for i := 0; i < rows-1; i++ {
		for j := i + 1; j < rows; j++ {
			if constant[i] || constant[j] {
				c.set(i, j, maxCorrelationDistance)
				continue
			}
			d := 1 - stat.Correlation(data[i], data[j], nil)
			// fp noise can push r a hair past +-1
			if d < 0 {
				d = 0
			} else if d > maxCorrelationDistance {
				d = maxCorrelationDistance
			}
			c.set(i, j, d)
		}
	}
	return c
}

func isConstant(row []float64) bool {
	for _, v := range row {
		if v != row[0] {
			return false
		}
	}
	return true
}
