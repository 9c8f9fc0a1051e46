package cluster

// SamePartition reports whether two labelings group the units identically,
// ignoring the label values themselves. Labels are arbitrary per run, so
// comparisons must go through membership rather than label equality.
func SamePartition(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	fromA := make(map[int]int)
	fromB := make(map[int]int)
	for i := range a {
		ma, okA := fromA[a[i]]
		mb, okB := fromB[b[i]]
		if okA != okB {
			return false
		}
		if !okA {
			fromA[a[i]] = b[i]
			fromB[b[i]] = a[i]
			continue
		}
		if ma != b[i] || mb != a[i] {
			return false
		}
	}
	return true
}

// RandIndex is the fraction of unit pairs on which two labelings agree,
// together in both or apart in both. 1 means identical partitions.
func RandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 1
	}
	agree := 0
	total := 0
	for i := 0; i < len(a)-1; i++ {
		for j := i + 1; j < len(a); j++ {
			if (a[i] == a[j]) == (b[i] == b[j]) {
				agree++
			}
			total++
		}
	}
	return float64(agree) / float64(total)
}
