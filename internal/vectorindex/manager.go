package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/metrics"
)

// Strategy names the index implementation in use
type Strategy string

const (
	StrategyFlat Strategy = "flat"
	StrategyIVF  Strategy = "ivf"
)

// Defaults
const (
	DefaultIVFThreshold = 10000
	DefaultIterations   = 10
	DefaultSeed         = 42
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Loader streams stored embeddings; storage.Storage satisfies it
type Loader interface {
	ListEmbeddings(ctx context.Context, fn func(chunkID int64, vector []float32) error) error
}

// Config tunes strategy selection and IVF training
type Config struct {
	IVFThreshold int   // Vector count at which IVF replaces flat search
	NProbe       int   // Partitions scanned per query; 0 means max(1, nlist/8)
	Iterations   int   // Lloyd iterations
	Seed         int64 // k-means seed
}

func (c Config) withDefaults() Config {
	if c.IVFThreshold <= 0 {
		c.IVFThreshold = DefaultIVFThreshold
	}
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	return c
}

// Stats describes the live index
type Stats struct {
	Strategy  Strategy  `json:"strategy"`
	Vectors   int       `json:"vectors"`
	Dimension int       `json:"dimension"`
	NList     int       `json:"nlist,omitempty"`
	NProbe    int       `json:"nprobe,omitempty"`
	Threshold int       `json:"ivf_threshold"`
	BuiltAt   time.Time `json:"built_at"`
}

// Manager owns the in-memory ANN index. Searches take a read lock; Rebuild
// builds off-lock and swaps the new index in. writeMu serializes Add and
// Remove with a whole Rebuild, load included.
type Manager struct {
	loader Loader
	config Config
	logger *zap.Logger

	writeMu   sync.Mutex
	mu        sync.RWMutex
	idx       index
	dimension int
	builtAt   time.Time
}

// NewManager creates an empty manager. Call Rebuild to load stored embeddings.
func NewManager(loader Loader, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		loader: loader,
		config: cfg.withDefaults(),
		logger: logger.Named("vectorindex"),
		idx:    newFlatIndex(),
	}
}

// Rebuild loads every stored embedding and builds the strategy its count calls for.
// Vectors whose dimension differs from the first one loaded are skipped.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	start := time.Now()
	var ids []int64
	var vecs [][]float32
	dimension, skipped := 0, 0

	if m.loader != nil {
		err := m.loader.ListEmbeddings(ctx, func(chunkID int64, vector []float32) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if dimension == 0 {
				dimension = len(vector)
			}
			unit := normalize(vector)
			if len(vector) != dimension || unit == nil {
				skipped++
				return nil
			}
			ids = append(ids, chunkID)
			vecs = append(vecs, unit)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load embeddings: %w", err)
		}
	}

	next := m.build(ids, vecs)

	m.mu.Lock()
	m.idx = next
	m.dimension = dimension
	m.builtAt = time.Now()
	m.mu.Unlock()
	metrics.VectorIndexSize.Set(float64(len(ids)))

	m.logger.Info("vector index rebuilt",
		zap.String("strategy", string(strategyOf(next))),
		zap.Int("vectors", len(ids)),
		zap.Int("skipped", skipped),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (m *Manager) build(ids []int64, vecs [][]float32) index {
	if len(vecs) >= m.config.IVFThreshold {
		return trainIVF(ids, vecs, m.config.NProbe, m.config.Iterations, m.config.Seed)
	}
	flat := newFlatIndex()
	for i, id := range ids {
		flat.add(id, vecs[i])
	}
	return flat
}

// Add inserts or replaces vectors. A flat index that grows past the threshold is retrained as IVF.
func (m *Manager) Add(ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, vec := range vectors {
		if m.idx.len() == 0 && m.dimension == 0 {
			m.dimension = len(vec)
		}
		if len(vec) != m.dimension {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), m.dimension)
		}
		if unit := normalize(vec); unit != nil {
			m.idx.add(ids[i], unit)
		}
	}

	if _, flat := m.idx.(*flatIndex); flat && m.idx.len() >= m.config.IVFThreshold {
		allIDs := make([]int64, 0, m.idx.len())
		allVecs := make([][]float32, 0, m.idx.len())
		m.idx.each(func(id int64, vec []float32) {
			allIDs = append(allIDs, id)
			allVecs = append(allVecs, vec)
		})
		m.idx = trainIVF(allIDs, allVecs, m.config.NProbe, m.config.Iterations, m.config.Seed)
		m.builtAt = time.Now()
		m.logger.Info("vector index promoted to ivf", zap.Int("vectors", len(allIDs)))
	}

	metrics.VectorIndexSize.Set(float64(m.idx.len()))
	return nil
}

// Remove deletes vectors by chunk id and returns how many were present
func (m *Manager) Remove(ids ...int64) int {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if m.idx.remove(id) {
			removed++
		}
	}
	if m.idx.len() == 0 {
		m.dimension = 0
	}
	metrics.VectorIndexSize.Set(float64(m.idx.len()))
	return removed
}

// Search returns up to k chunk ids ordered by cosine similarity, best first
func (m *Manager) Search(query []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || m.idx.len() == 0 {
		return []Result{}, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), m.dimension)
	}
	unit := normalize(query)
	if unit == nil {
		return []Result{}, nil
	}
	return m.idx.search(unit, k), nil
}

// Len returns the number of indexed vectors
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.len()
}

// Stats reports the live strategy and its parameters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Strategy:  strategyOf(m.idx),
		Vectors:   m.idx.len(),
		Dimension: m.dimension,
		Threshold: m.config.IVFThreshold,
		BuiltAt:   m.builtAt,
	}
	if ivf, ok := m.idx.(*ivfIndex); ok {
		stats.NList = len(ivf.centroids)
		stats.NProbe = ivf.nprobe
	}
	return stats
}

func strategyOf(idx index) Strategy {
	if _, ok := idx.(*ivfIndex); ok {
		return StrategyIVF
	}
	return StrategyFlat
}
