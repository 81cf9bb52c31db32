package vectorindex

import (
	"math"
	"math/rand/v2"
	"sort"
)

const (
	minNList = 8
	maxNList = 4096
)

// ivfIndex partitions vectors by their nearest k-means centroid and scans
// only the nprobe closest partitions at query time
type ivfIndex struct {
	centroids [][]float32
	lists     []*flatIndex
	assigned  map[int64]int
	nprobe    int
}

// NList returns round(sqrt(n)) clamped to [8, 4096] and never above n
func NList(n int) int {
	nlist := int(math.Round(math.Sqrt(float64(n))))
	nlist = max(minNList, min(maxNList, nlist))
	return max(1, min(nlist, n))
}

// DefaultNProbe returns max(1, nlist/8)
func DefaultNProbe(nlist int) int {
	return max(1, nlist/8)
}

// trainIVF builds an IVF index over ids/vecs with Lloyd iterations from a fixed seed
func trainIVF(ids []int64, vecs [][]float32, nprobe, iterations int, seed int64) *ivfIndex {
	nlist := NList(len(vecs))
	if nprobe <= 0 {
		nprobe = DefaultNProbe(nlist)
	}
	nprobe = min(nprobe, nlist)
	if iterations <= 0 {
		iterations = 1
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	centroids := make([][]float32, nlist)
	for i, p := range rng.Perm(len(vecs))[:nlist] {
		centroids[i] = append([]float32(nil), vecs[p]...)
	}

	assign := make([]int, len(vecs))
	dim := len(vecs[0])
	for iter := 0; iter < iterations; iter++ {
		changed := 0
		for i, v := range vecs {
			c := nearest(centroids, v)
			if iter == 0 || c != assign[i] {
				changed++
			}
			assign[i] = c
		}

		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Reseed an empty partition from a random vector
				centroids[c] = append([]float32(nil), vecs[rng.IntN(len(vecs))]...)
				continue
			}
			next := make([]float32, dim)
			for d := range next {
				next[d] = float32(sums[c][d] / float64(counts[c]))
			}
			if n := normalize(next); n != nil {
				centroids[c] = n
			}
		}

		if changed == 0 && iter > 0 {
			break
		}
	}

	idx := &ivfIndex{
		centroids: centroids,
		lists:     make([]*flatIndex, nlist),
		assigned:  make(map[int64]int, len(ids)),
		nprobe:    nprobe,
	}
	for c := range idx.lists {
		idx.lists[c] = newFlatIndex()
	}
	for i, id := range ids {
		idx.add(id, vecs[i])
	}
	return idx
}

func nearest(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for c, centroid := range centroids {
		if s := dot(centroid, v); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func (x *ivfIndex) add(id int64, vec []float32) {
	x.remove(id)
	c := nearest(x.centroids, vec)
	x.lists[c].add(id, vec)
	x.assigned[id] = c
}

func (x *ivfIndex) remove(id int64) bool {
	c, ok := x.assigned[id]
	if !ok {
		return false
	}
	delete(x.assigned, id)
	return x.lists[c].remove(id)
}

func (x *ivfIndex) search(query []float32, k int) []Result {
	type probe struct {
		list  int
		score float64
	}
	probes := make([]probe, len(x.centroids))
	for c, centroid := range x.centroids {
		probes[c] = probe{list: c, score: dot(query, centroid)}
	}
	sort.Slice(probes, func(i, j int) bool {
		if probes[i].score != probes[j].score {
			return probes[i].score > probes[j].score
		}
		return probes[i].list < probes[j].list
	})

	top := newTopK(k)
	for _, p := range probes[:min(x.nprobe, len(probes))] {
		list := x.lists[p.list]
		for i, vec := range list.vecs {
			top.push(list.ids[i], dot(query, vec))
		}
	}
	return top.results()
}

func (x *ivfIndex) len() int { return len(x.assigned) }

func (x *ivfIndex) each(fn func(id int64, vec []float32)) {
	for _, list := range x.lists {
		list.each(fn)
	}
}
