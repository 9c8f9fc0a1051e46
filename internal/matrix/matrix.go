// Package matrix pivots long-form tag assignments into the wide indicator
// form and standardizes it for correlation and component analysis.
package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copperline/tagmap/internal/tags"
)

// Indicator is the wide-form presence matrix: one row per record with at
// least one tag, one column per dictionary tag, cell 1 when the tag is
// assigned and 0 otherwise. X is nil when there are no assignments.
type Indicator struct {
	X       *mat.Dense
	Records []string
	Tags    []string
}

// BuildIndicator pivots assignments into an indicator matrix. Rows follow
// the records' first appearance in the assignment list; columns follow
// dictionary order. Absent pairs fill with 0, repeated assignments stay 1.
func BuildIndicator(assignments []tags.Assignment, dict *tags.Dictionary) *Indicator {
	recordIndex := make(map[string]int)
	records := make([]string, 0)
	for _, a := range assignments {
		if _, ok := recordIndex[a.Record]; !ok {
			recordIndex[a.Record] = len(records)
			records = append(records, a.Record)
		}
	}

	ind := &Indicator{Records: records, Tags: dict.Tags()}
	if len(records) == 0 || dict.Len() == 0 {
		return ind
	}

	ind.X = mat.NewDense(len(records), dict.Len(), nil)
	for _, a := range assignments {
		col, ok := dict.Index(a.Tag)
		if !ok {
			continue
		}
		ind.X.Set(recordIndex[a.Record], col, 1)
	}
	return ind
}

// Standardized is the centered, unit-variance form of an indicator matrix.
// Columns that could not be scaled are listed in Dropped.
type Standardized struct {
	X       *mat.Dense
	Records []string
	Tags    []string
	Dropped []string
}

// Standardize centers each column to mean 0 and scales it to unit sample
// variance. A zero-variance column has no defined scale; such columns are
// dropped and reported in Dropped rather than passed through as NaN.
func Standardize(ind *Indicator) (*Standardized, error) {
	if ind == nil || ind.X == nil || len(ind.Records) == 0 {
		return nil, fmt.Errorf("standardize: empty indicator matrix")
	}
	rows, cols := ind.X.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("standardize: need at least 2 records, have %d", rows)
	}

	kept := make([]int, 0, cols)
	dropped := make([]string, 0)
	means := make([]float64, 0, cols)
	stddevs := make([]float64, 0, cols)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, ind.X)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			dropped = append(dropped, ind.Tags[j])
			continue
		}
		kept = append(kept, j)
		means = append(means, mean)
		stddevs = append(stddevs, std)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("standardize: all %d columns have zero variance", cols)
	}

	X := mat.NewDense(rows, len(kept), nil)
	keptTags := make([]string, len(kept))
	for idx, j := range kept {
		keptTags[idx] = ind.Tags[j]
		for i := 0; i < rows; i++ {
			X.Set(i, idx, (ind.X.At(i, j)-means[idx])/stddevs[idx])
		}
	}

	return &Standardized{
		X:       X,
		Records: append([]string(nil), ind.Records...),
		Tags:    keptTags,
		Dropped: dropped,
	}, nil
}
