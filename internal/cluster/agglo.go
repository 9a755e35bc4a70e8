package cluster

// aggloLabels merges L2-normalized dense vectors bottom-up with average
// linkage on cosine distance. Merging stops when the closest remaining pair
// is farther apart than threshold.
func aggloLabels(vecs [][]float64, threshold float64) []int {
	n := len(vecs)
	if n == 0 {
		return nil
	}

	// Pairwise cosine distance matrix between current groups, updated with
	// the Lance-Williams average-linkage rule on each merge.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := i + 1; j < n; j++ {
			d := 1 - dotDense(vecs[i], vecs[j])
			dist[i][j] = d
		}
	}

	active := make([]bool, n)
	size := make([]int, n)
	members := make([][]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
		members[i] = []int{i}
	}

	pairDist := func(i, j int) float64 {
		if i > j {
			i, j = j, i
		}
		return dist[i][j]
	}

	for {
		bi, bj, best := -1, -1, threshold
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if d := pairDist(i, j); d <= best {
					bi, bj, best = i, j, d
				}
			}
		}
		if bi < 0 {
			break
		}

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			merged := (float64(size[bi])*pairDist(bi, k) + float64(size[bj])*pairDist(bj, k)) /
				float64(size[bi]+size[bj])
			if bi < k {
				dist[bi][k] = merged
			} else {
				dist[k][bi] = merged
			}
		}

		members[bi] = append(members[bi], members[bj]...)
		size[bi] += size[bj]
		active[bj] = false
	}

	labels := make([]int, n)
	next := 0
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		for _, m := range members[i] {
			labels[m] = next
		}
		next++
	}
	return labels
}

func dotDense(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
