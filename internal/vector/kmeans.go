package vector

import (
	"math"
	"math/rand"
)

// sphericalKMeans clusters unit vectors into k centroids by inner product, seeding with
// k-means++ on the squared chordal distance (2 - 2·ip). Centroids are re-normalized after
// each update. Clusters that lose all members keep their previous centroid.
func sphericalKMeans(vectors [][]float32, k, maxIters int, rng *rand.Rand) [][]float32 {
	dim := len(vectors[0])
	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = make([]float32, dim)
	}

	copy(centroids[0], vectors[rng.Intn(len(vectors))])

	// minDist tracks each vector's distance to its nearest chosen centroid.
	minDist := make([]float64, len(vectors))
	var sum float64
	for i, vec := range vectors {
		d := chordalDistance(vec, centroids[0])
		minDist[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		chosen := rng.Intn(len(vectors))
		if sum > 0 {
			target := rng.Float64() * sum
			var cumsum float64
			for i, d := range minDist {
				cumsum += d
				if cumsum >= target {
					chosen = i
					break
				}
			}
		}
		copy(centroids[c], vectors[chosen])

		sum = 0
		for i, vec := range vectors {
			if d := chordalDistance(vec, centroids[c]); d < minDist[i] {
				minDist[i] = d
			}
			sum += minDist[i]
		}
	}

	assignments := make([]int, len(vectors))
	for i := range assignments {
		assignments[i] = -1
	}
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	counts := make([]int, k)

	for range maxIters {
		changed := false
		for i, vec := range vectors {
			nearest := nearestCentroid(vec, centroids)
			if assignments[i] != nearest {
				changed = true
				assignments[i] = nearest
			}
		}
		if !changed {
			break
		}

		for c := range sums {
			clear(sums[c])
			counts[c] = 0
		}
		for i, vec := range vectors {
			c := assignments[i]
			counts[c]++
			for j, v := range vec {
				sums[c][j] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			var norm float64
			for _, v := range sums[c] {
				norm += v * v
			}
			if norm == 0 {
				continue
			}
			inv := 1 / math.Sqrt(norm)
			for j, v := range sums[c] {
				centroids[c][j] = float32(v * inv)
			}
		}
	}
	return centroids
}

// nearestCentroid returns the index of the centroid with the highest inner product.
func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestScore := math.Inf(-1)
	for i, c := range centroids {
		if s := InnerProduct(vec, c); s > bestScore {
			bestScore = s
			best = i
		}
	}
	return best
}

func chordalDistance(a, b []float32) float64 {
	d := 2 - 2*InnerProduct(a, b)
	if d < 0 {
		return 0
	}
	return d
}

// randomUnitVectors returns n seeded Gaussian vectors normalized to unit length.
// They stand in for real data when a training sample is too small.
func randomUnitVectors(n, dim int, rng *rand.Rand) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		var norm float64
		for j := range v {
			f := rng.NormFloat64()
			v[j] = float32(f)
			norm += f * f
		}
		inv := float32(1 / math.Sqrt(norm))
		for j := range v {
			v[j] *= inv
		}
		out[i] = v
	}
	return out
}
