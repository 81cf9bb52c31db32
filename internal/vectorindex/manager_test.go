package vectorindex

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceLoader serves embeddings from memory in id order
type sliceLoader struct {
	ids  []int64
	vecs [][]float32
	err  error
}

func (l *sliceLoader) ListEmbeddings(ctx context.Context, fn func(int64, []float32) error) error {
	if l.err != nil {
		return l.err
	}
	for i, id := range l.ids {
		if err := fn(id, l.vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// clusteredVectors generates n vectors around a few random centers
func clusteredVectors(n, dim, clusters int, seed uint64) ([]int64, [][]float32) {
	rng := rand.New(rand.NewPCG(seed, seed))
	centers := make([][]float32, clusters)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for d := range centers[c] {
			centers[c][d] = float32(rng.NormFloat64())
		}
	}
	ids := make([]int64, n)
	vecs := make([][]float32, n)
	for i := range vecs {
		center := centers[i%clusters]
		vecs[i] = make([]float32, dim)
		for d := range vecs[i] {
			vecs[i][d] = center[d] + float32(rng.NormFloat64()*0.1)
		}
		ids[i] = int64(i + 1)
	}
	return ids, vecs
}

func TestNList(t *testing.T) {
	testCases := []struct {
		n    int
		want int
	}{
		{n: 1, want: 1},
		{n: 5, want: 5},
		{n: 20, want: 8},
		{n: 10000, want: 100},
		{n: 12000, want: 110},
		{n: 100000000, want: 4096},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, NList(tc.n), "n=%d", tc.n)
	}

	assert.Equal(t, 1, DefaultNProbe(8))
	assert.Equal(t, 12, DefaultNProbe(100))
	assert.Equal(t, 1, DefaultNProbe(1))
}

func TestManager_FlatSearch(t *testing.T) {
	loader := &sliceLoader{
		ids: []int64{1, 2, 3, 4},
		vecs: [][]float32{
			{1, 0, 0},
			{0.9, 0.1, 0},
			{0, 1, 0},
			{0, 0, 2}, // normalized on load
		},
	}
	m := NewManager(loader, Config{}, nil)
	require.NoError(t, m.Rebuild(context.Background()))

	stats := m.Stats()
	assert.Equal(t, StrategyFlat, stats.Strategy)
	assert.Equal(t, 4, stats.Vectors)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, DefaultIVFThreshold, stats.Threshold)

	results, err := m.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, int64(2), results[1].ChunkID)

	results, err = m.Search([]float32{0, 0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4), results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestManager_TieBreakByChunkID(t *testing.T) {
	m := NewManager(nil, Config{}, nil)
	require.NoError(t, m.Add([]int64{9, 3, 5}, [][]float32{{1, 0}, {1, 0}, {1, 0}}))

	results, err := m.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{3, 5, 9}, []int64{results[0].ChunkID, results[1].ChunkID, results[2].ChunkID})
}

func TestManager_AddRemove(t *testing.T) {
	m := NewManager(nil, Config{}, nil)

	results, err := m.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, m.Add([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}}))
	assert.Equal(t, 2, m.Len())

	// Re-adding replaces the vector
	require.NoError(t, m.Add([]int64{1}, [][]float32{{0, 1}}))
	assert.Equal(t, 2, m.Len())
	results, err = m.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, results[0].Score, 1e-6)

	err = m.Add([]int64{3}, [][]float32{{1, 0, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = m.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	assert.Equal(t, 1, m.Remove(1, 99))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Remove(2))

	// An empty index accepts a new dimension
	require.NoError(t, m.Add([]int64{4}, [][]float32{{1, 0, 0}}))
	assert.Equal(t, 3, m.Stats().Dimension)

	assert.Error(t, m.Add([]int64{1, 2}, [][]float32{{1, 0, 0}}))
}

func TestManager_RebuildSelectsIVF(t *testing.T) {
	ids, vecs := clusteredVectors(2000, 16, 12, 7)
	m := NewManager(&sliceLoader{ids: ids, vecs: vecs}, Config{IVFThreshold: 500}, nil)
	require.NoError(t, m.Rebuild(context.Background()))

	stats := m.Stats()
	assert.Equal(t, StrategyIVF, stats.Strategy)
	assert.Equal(t, 2000, stats.Vectors)
	assert.Equal(t, NList(2000), stats.NList)
	assert.Equal(t, DefaultNProbe(NList(2000)), stats.NProbe)

	// Every stored vector finds itself first
	for _, i := range []int{0, 17, 555, 1999} {
		results, err := m.Search(vecs[i], 5)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, ids[i], results[0].ChunkID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	}

	// Removing from IVF works through the partition map
	assert.Equal(t, 1, m.Remove(ids[17]))
	results, err := m.Search(vecs[17], 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, ids[17], r.ChunkID)
	}
}

func TestManager_IVFDeterministic(t *testing.T) {
	ids, vecs := clusteredVectors(800, 8, 6, 3)
	build := func() []Result {
		m := NewManager(&sliceLoader{ids: ids, vecs: vecs}, Config{IVFThreshold: 100, NProbe: 2}, nil)
		require.NoError(t, m.Rebuild(context.Background()))
		assert.Equal(t, 2, m.Stats().NProbe)
		results, err := m.Search(vecs[42], 10)
		require.NoError(t, err)
		return results
	}
	assert.Equal(t, build(), build())
}

func TestManager_PromotesToIVFOnAdd(t *testing.T) {
	ids, vecs := clusteredVectors(300, 8, 4, 11)
	m := NewManager(nil, Config{IVFThreshold: 200}, nil)

	require.NoError(t, m.Add(ids[:150], vecs[:150]))
	assert.Equal(t, StrategyFlat, m.Stats().Strategy)

	require.NoError(t, m.Add(ids[150:], vecs[150:]))
	assert.Equal(t, StrategyIVF, m.Stats().Strategy)
	assert.Equal(t, 300, m.Len())

	results, err := m.Search(vecs[250], 1)
	require.NoError(t, err)
	assert.Equal(t, ids[250], results[0].ChunkID)
}

func TestManager_RebuildSkipsMismatchedDimensions(t *testing.T) {
	loader := &sliceLoader{
		ids:  []int64{1, 2, 3},
		vecs: [][]float32{{1, 0}, {1, 0, 0}, {0, 0}},
	}
	m := NewManager(loader, Config{}, nil)
	require.NoError(t, m.Rebuild(context.Background()))
	assert.Equal(t, 1, m.Len())
}

func TestManager_RebuildError(t *testing.T) {
	m := NewManager(&sliceLoader{err: errors.New("db closed")}, Config{}, nil)
	assert.Error(t, m.Rebuild(context.Background()))
}

// gatedLoader blocks inside ListEmbeddings until release is closed
type gatedLoader struct {
	sliceLoader
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLoader) ListEmbeddings(ctx context.Context, fn func(int64, []float32) error) error {
	close(l.entered)
	<-l.release
	return l.sliceLoader.ListEmbeddings(ctx, fn)
}

func TestManager_AddDuringRebuildIsKept(t *testing.T) {
	ids, vecs := clusteredVectors(20, 8, 2, 3)
	loader := &gatedLoader{
		sliceLoader: sliceLoader{ids: ids, vecs: vecs},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := NewManager(loader, Config{}, nil)

	rebuilt := make(chan error, 1)
	go func() { rebuilt <- m.Rebuild(context.Background()) }()
	<-loader.entered

	// A document finishes indexing while the rebuild is still loading
	extra := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	added := make(chan error, 1)
	go func() { added <- m.Add([]int64{999}, [][]float32{extra}) }()
	time.Sleep(20 * time.Millisecond)
	close(loader.release)

	require.NoError(t, <-rebuilt)
	require.NoError(t, <-added)
	assert.Equal(t, len(ids)+1, m.Len())

	results, err := m.Search(extra, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(999), results[0].ChunkID)
}

func BenchmarkSearch_Flat(b *testing.B) {
	ids, vecs := clusteredVectors(5000, 128, 20, 1)
	m := NewManager(&sliceLoader{ids: ids, vecs: vecs}, Config{}, nil)
	if err := m.Rebuild(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Search(vecs[i%len(vecs)], 10)
	}
}

func BenchmarkSearch_IVF(b *testing.B) {
	ids, vecs := clusteredVectors(20000, 128, 20, 1)
	m := NewManager(&sliceLoader{ids: ids, vecs: vecs}, Config{}, nil)
	if err := m.Rebuild(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Search(vecs[i%len(vecs)], 10)
	}
}
