package vectorindex

import (
	"container/heap"
	"math"
)

// Result is a chunk id with its cosine similarity to the query
type Result struct {
	ChunkID int64
	Score   float64
}

// index is implemented by the flat and IVF strategies. Vectors are unit length.
type index interface {
	add(id int64, vec []float32)
	remove(id int64) bool
	search(query []float32, k int) []Result
	len() int
	each(fn func(id int64, vec []float32))
}

// flatIndex scans every vector
type flatIndex struct {
	ids  []int64
	vecs [][]float32
	pos  map[int64]int
}

func newFlatIndex() *flatIndex {
	return &flatIndex{pos: make(map[int64]int)}
}

func (f *flatIndex) add(id int64, vec []float32) {
	if i, ok := f.pos[id]; ok {
		f.vecs[i] = vec
		return
	}
	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, vec)
}

// remove swaps the last entry into the hole
func (f *flatIndex) remove(id int64) bool {
	i, ok := f.pos[id]
	if !ok {
		return false
	}
	last := len(f.ids) - 1
	if i != last {
		f.ids[i] = f.ids[last]
		f.vecs[i] = f.vecs[last]
		f.pos[f.ids[i]] = i
	}
	f.ids = f.ids[:last]
	f.vecs = f.vecs[:last]
	delete(f.pos, id)
	return true
}

func (f *flatIndex) search(query []float32, k int) []Result {
	top := newTopK(k)
	for i, vec := range f.vecs {
		top.push(f.ids[i], dot(query, vec))
	}
	return top.results()
}

func (f *flatIndex) len() int { return len(f.ids) }

func (f *flatIndex) each(fn func(id int64, vec []float32)) {
	for i, id := range f.ids {
		fn(id, f.vecs[i])
	}
}

// dot is cosine similarity for unit vectors
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// normalize returns a unit-length copy of v, or nil for a zero vector
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// topK keeps the k best results in a min-heap
type topK struct {
	k     int
	items resultHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make(resultHeap, 0, k)}
}

func (t *topK) push(id int64, score float64) {
	if t.k <= 0 {
		return
	}
	r := Result{ChunkID: id, Score: score}
	if len(t.items) < t.k {
		heap.Push(&t.items, r)
		return
	}
	if worse(t.items[0], r) {
		t.items[0] = r
		heap.Fix(&t.items, 0)
	}
}

// results returns the kept results best first
func (t *topK) results() []Result {
	out := make([]Result, len(t.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.items).(Result)
	}
	return out
}

// worse orders by score, then prefers the lower chunk id
func worse(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ChunkID > b.ChunkID
}

type resultHeap []Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
