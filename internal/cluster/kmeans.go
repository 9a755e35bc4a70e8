package cluster

import (
	"math/rand"
)

const (
	kmeansSeed     = 42
	kmeansMaxIters = 30
)

// kmeansLabels partitions L2-normalized sparse vectors into k groups by
// cosine similarity. Seeding is deterministic so repeated passes over the
// same corpus produce the same partition.
func kmeansLabels(vecs []sparseVec, k int) []int {
	n := len(vecs)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	centroids := seedCentroids(vecs, k)
	labels := make([]int, n)

	for iter := 0; iter < kmeansMaxIters; iter++ {
		changed := false
		for i, v := range vecs {
			best, bestSim := 0, -1.0
			for c, centroid := range centroids {
				if sim := dotSparse(v, centroid); sim > bestSim {
					best, bestSim = c, sim
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		next := make([]sparseVec, k)
		for c := range next {
			next[c] = make(sparseVec)
		}
		for i, v := range vecs {
			c := labels[i]
			counts[c]++
			for idx, x := range v {
				next[c][idx] += x
			}
		}
		for c := range next {
			if counts[c] == 0 {
				// Empty cluster keeps its old centroid.
				next[c] = centroids[c]
				continue
			}
			next[c] = l2Normalize(next[c])
		}
		centroids = next
	}

	return labels
}

// seedCentroids picks initial centroids k-means++ style: the first at random,
// each next one biased toward vectors far from every chosen centroid.
func seedCentroids(vecs []sparseVec, k int) []sparseVec {
	rng := rand.New(rand.NewSource(kmeansSeed))
	n := len(vecs)

	centroids := make([]sparseVec, 0, k)
	centroids = append(centroids, copyVec(vecs[rng.Intn(n)]))

	dist := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, v := range vecs {
			d := 1 - dotSparse(v, centroids[len(centroids)-1])
			if len(centroids) == 1 || d < dist[i] {
				dist[i] = d
			}
			total += dist[i] * dist[i]
		}

		pick := 0
		if total > 0 {
			target := rng.Float64() * total
			for i := range vecs {
				target -= dist[i] * dist[i]
				if target <= 0 {
					pick = i
					break
				}
			}
		} else {
			pick = rng.Intn(n)
		}
		centroids = append(centroids, copyVec(vecs[pick]))
	}
	return centroids
}

func copyVec(v sparseVec) sparseVec {
	out := make(sparseVec, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}
