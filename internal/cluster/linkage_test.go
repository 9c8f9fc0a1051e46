package cluster

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// threeUnitDistances builds the hand-checkable example used below:
// units 0 and 1 are close (0.1), unit 2 is far from both (0.9 and 0.8).
func threeUnitDistances() *Condensed {
	c := NewCondensed(3)
	c.set(0, 1, 0.1)
	c.set(0, 2, 0.9)
	c.set(1, 2, 0.8)
	return c
}

func TestParseLinkage(t *testing.T) {
	if l, err := ParseLinkage("complete"); err != nil || l != CompleteLinkage {
		t.Errorf("ParseLinkage(complete) = %v, %v", l, err)
	}
	if l, err := ParseLinkage("average"); err != nil || l != AverageLinkage {
		t.Errorf("ParseLinkage(average) = %v, %v", l, err)
	}
	if _, err := ParseLinkage("ward"); err == nil {
		t.Error("expected error for unsupported linkage")
	}
}

func TestAgglomerate_CompleteWorkedExample(t *testing.T) {
	dg, err := Agglomerate(threeUnitDistances(), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}
	if dg.Leaves != 3 || len(dg.Merges) != 2 {
		t.Fatalf("unexpected tree shape: %+v", dg)
	}

	first := dg.Merges[0]
	if first.Left != 0 || first.Right != 1 || math.Abs(first.Height-0.1) > 1e-12 || first.Size != 2 {
		t.Errorf("first merge = %+v, want {0 1 0.1 2}", first)
	}

	// Complete linkage takes the farther of 0.9 and 0.8 to the new node.
	second := dg.Merges[1]
	if second.Left != 2 || second.Right != 3 || math.Abs(second.Height-0.9) > 1e-12 || second.Size != 3 {
		t.Errorf("second merge = %+v, want {2 3 0.9 3}", second)
	}
}

func TestAgglomerate_AverageWorkedExample(t *testing.T) {
	dg, err := Agglomerate(threeUnitDistances(), AverageLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}

	second := dg.Merges[1]
	want := (0.9 + 0.8) / 2
	if math.Abs(second.Height-want) > 1e-12 {
		t.Errorf("average second merge height = %v, want %v", second.Height, want)
	}
}

func TestAgglomerate_HeightsNondecreasing(t *testing.T) {
	X := mat.NewDense(5, 4, []float64{
		1, 1, 0, 0,
		1, 1, 0, 1,
		0, 0, 1, 1,
		0, 1, 1, 0,
		1, 0, 0, 1,
	})
	d := CorrelationDistances(X)

	for _, link := range []Linkage{CompleteLinkage, AverageLinkage} {
		dg, err := Agglomerate(d, link)
		if err != nil {
			t.Fatalf("Agglomerate(%s): %v", link, err)
		}
		for i := 1; i < len(dg.Merges); i++ {
			if dg.Merges[i].Height < dg.Merges[i-1].Height-1e-12 {
				t.Errorf("%s linkage inverted heights at step %d: %v then %v",
					link, i, dg.Merges[i-1].Height, dg.Merges[i].Height)
			}
		}
	}
}

func TestAgglomerate_RejectsUnknownLinkage(t *testing.T) {
	if _, err := Agglomerate(threeUnitDistances(), Linkage("single")); err == nil {
		t.Fatal("expected error for unsupported linkage")
	}
}

func TestCut_FixedHeights(t *testing.T) {
	dg, err := Agglomerate(threeUnitDistances(), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}

	low := dg.Cut(0.05)
	if NumClusters(low) != 3 {
		t.Errorf("cut below every merge should keep singletons, got %v", low)
	}

	mid := dg.Cut(0.4)
	if !SamePartition(mid, []int{1, 1, 2}) {
		t.Errorf("cut at 0.4 = %v, want units 0,1 together and 2 alone", mid)
	}

	high := dg.Cut(1.0)
	if NumClusters(high) != 1 {
		t.Errorf("cut above every merge should give one cluster, got %v", high)
	}
}

func TestCut_LabelsAreStableWithinRun(t *testing.T) {
	dg, err := Agglomerate(threeUnitDistances(), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}

	labels := dg.Cut(0.4)
	for _, l := range labels {
		if l < 1 {
			t.Errorf("cluster ids must be positive, got %v", labels)
		}
	}
	// Numbering follows the lowest-indexed leaf of each group.
	if labels[0] != 1 {
		t.Errorf("leaf 0 should open cluster 1, got %v", labels)
	}
}

func TestCut_MonotonicCoarsening(t *testing.T) {
	X := mat.NewDense(6, 5, []float64{
		1, 1, 0, 0, 0,
		1, 1, 0, 0, 1,
		0, 0, 1, 1, 0,
		0, 1, 1, 1, 0,
		1, 0, 0, 1, 1,
		0, 1, 0, 1, 1,
	})
	dg, err := Agglomerate(CorrelationDistances(X), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}

	prev := math.MaxInt
	for _, h := range []float64{0.0, 0.2, 0.4, 0.8, 1.2, 1.6, 2.0} {
		k := NumClusters(dg.Cut(h))
		if k > prev {
			t.Fatalf("cluster count rose from %d to %d at height %v", prev, k, h)
		}
		prev = k
	}
}

// Records tagged {A,B}, {A,B}, {C} must split into the pair and a singleton
// at any low cutting height.
func TestCut_SeparatesDisjointTagSets(t *testing.T) {
	X := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		1, 1, 0,
		0, 0, 1,
	})

	dg, err := Agglomerate(CorrelationDistances(X), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}

	labels := dg.Cut(0.4)
	if !SamePartition(labels, []int{1, 1, 2}) {
		t.Errorf("labels = %v, want first two together and third alone", labels)
	}
}

func TestAgglomerate_EmptyInput(t *testing.T) {
	dg, err := Agglomerate(NewCondensed(0), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}
	if dg.Leaves != 0 || len(dg.Merges) != 0 {
		t.Errorf("expected empty dendrogram, got %+v", dg)
	}
	if labels := dg.Cut(0.4); labels != nil {
		t.Errorf("expected nil labels for empty tree, got %v", labels)
	}
}

func TestAgglomerate_SingleLeaf(t *testing.T) {
	dg, err := Agglomerate(NewCondensed(1), CompleteLinkage)
	if err != nil {
		t.Fatalf("Agglomerate: %v", err)
	}
	labels := dg.Cut(0.4)
	if len(labels) != 1 || labels[0] != 1 {
		t.Errorf("single leaf should form cluster 1, got %v", labels)
	}
}
