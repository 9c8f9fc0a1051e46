package cluster

import (
	"fmt"
	"math"
)

// Linkage selects the inter-cluster distance rule used during agglomeration.
type Linkage string

const (
	// CompleteLinkage merges on the farthest pair between two clusters.
	CompleteLinkage Linkage = "complete"
	// AverageLinkage merges on the size-weighted mean pairwise distance.
	AverageLinkage Linkage = "average"
)

// ParseLinkage maps a user-supplied name onto a Linkage.
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(s) {
	case CompleteLinkage:
		return CompleteLinkage, nil
	case AverageLinkage:
		return AverageLinkage, nil
	default:
		return "", fmt.Errorf("unknown linkage %q (want complete or average)", s)
	}
}

// Merge records one agglomeration step. Node ids follow the usual scheme:
// leaves are 0..n-1 and the merge produced by step i is node n+i. Height is
// the dissimilarity at which Left and Right joined; Size counts the leaves
// below the new node.
type Merge struct {
	Left   int
	Right  int
	Height float64
	Size   int
}

// Dendrogram is the binary merge tree over Leaves units.
type Dendrogram struct {
	Leaves int
	Merges []Merge
}

// Agglomerate builds a merge tree from condensed distances. Both supported
// linkages are monotonic, so merge heights never decrease from step to step.
func Agglomerate(d *Condensed, link Linkage) (*Dendrogram, error) {
	switch link {
	case CompleteLinkage, AverageLinkage:
	default:
		return nil, fmt.Errorf("unknown linkage %q", link)
	}

	n := d.N()
	if n == 0 {
		return &Dendrogram{}, nil
	}

	// Working distances between active slots. A merge collapses slot j into
	// slot i, so at most n slots ever exist.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			dist[i][j] = d.At(i, j)
		}
	}

	active := make([]bool, n)
	node := make([]int, n)
	size := make([]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		node[i] = i
		size[i] = 1
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}

		left, right := node[bi], node[bj]
		if left > right {
			left, right = right, left
		}
		merges = append(merges, Merge{Left: left, Right: right, Height: best, Size: size[bi] + size[bj]})

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			switch link {
			case CompleteLinkage:
				if dist[bj][k] > dist[bi][k] {
					dist[bi][k] = dist[bj][k]
				}
			case AverageLinkage:
				wi := float64(size[bi])
				wj := float64(size[bj])
				dist[bi][k] = (wi*dist[bi][k] + wj*dist[bj][k]) / (wi + wj)
			}
			dist[k][bi] = dist[bi][k]
		}

		node[bi] = n + step
		size[bi] += size[bj]
		active[bj] = false
	}

	return &Dendrogram{Leaves: n, Merges: merges}, nil
}

// Cut slices the tree at height h. Every merge at or below h joins its
// children; the surviving groups become clusters numbered 1..k in order of
// their lowest-indexed leaf. Raising h can only merge groups, never split
// them, so cluster counts fall monotonically as h grows.
func (dg *Dendrogram) Cut(h float64) []int {
	n := dg.Leaves
	if n == 0 {
		return nil
	}

	parent := make([]int, n+len(dg.Merges))
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for i, m := range dg.Merges {
		if m.Height > h {
			continue
		}
		id := n + i
		parent[find(m.Left)] = id
		parent[find(m.Right)] = id
	}

	labels := make([]int, n)
	rootLabel := make(map[int]int)
	next := 1
	for i := 0; i < n; i++ {
		root := find(i)
		label, ok := rootLabel[root]
		if !ok {
			label = next
			rootLabel[root] = label
			next++
		}
		labels[i] = label
	}
	return labels
}

// NumClusters counts the distinct labels in a cut.
func NumClusters(labels []int) int {
	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
