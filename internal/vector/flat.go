package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatIndex is an in-memory brute-force vector index with binary persistence.
// Adding a vector whose ID is already present is a no-op, which makes
// re-ingestion idempotent. Search ordering is deterministic: ties are broken
// by the lexicographically smaller ID.
type FlatIndex struct {
	dimensions int
	metric     Metric
	ids        []string
	vectors    [][]float32
	byID       map[string]int
	mu         sync.RWMutex
}

// NewFlatIndex creates a flat index with the given dimension and metric.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	switch metric {
	case MetricCosine, MetricL2:
	case "":
		metric = MetricCosine
	default:
		return nil, fmt.Errorf("unknown metric %q (supported: cosine, l2)", metric)
	}
	return &FlatIndex{
		dimensions: dimensions,
		metric:     metric,
		byID:       make(map[string]int),
	}, nil
}

// Add inserts vectors with the given IDs, skipping IDs already present.
// Returns the number of vectors actually inserted.
func (f *FlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("ids and vectors length mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for i, id := range ids {
		if _, exists := f.byID[id]; exists {
			continue
		}
		if len(vectors[i]) != f.dimensions {
			return added, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), f.dimensions)
		}
		vec := make([]float32, f.dimensions)
		copy(vec, vectors[i])
		f.byID[id] = len(f.ids)
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, vec)
		added++
	}
	return added, nil
}

// Search returns the top-k hits for query under the configured metric.
// Returns ErrIndexEmpty when the index holds no vectors.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.ids) == 0 {
		return nil, ErrIndexEmpty
	}
	if k <= 0 {
		return nil, nil
	}
	scores := make([]*Result, len(f.ids))
	for i, vec := range f.vectors {
		scores[i] = &Result{ID: f.ids[i], Score: f.score(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// score returns a higher-is-better score: inner product for cosine (assumes
// unit-normalized vectors), negated distance for L2.
func (f *FlatIndex) score(query, vec []float32) float64 {
	if f.metric == MetricL2 {
		var sum float64
		for j := 0; j < f.dimensions; j++ {
			d := float64(query[j] - vec[j])
			sum += d * d
		}
		return -math.Sqrt(sum)
	}
	var dot float64
	for j := 0; j < f.dimensions; j++ {
		dot += float64(query[j] * vec[j])
	}
	return dot
}

// Vector returns a copy of the stored vector for id, if present.
func (f *FlatIndex) Vector(id string) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i, ok := f.byID[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, f.dimensions)
	copy(out, f.vectors[i])
	return out, true
}

// Contains reports whether id is in the index.
func (f *FlatIndex) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.byID[id]
	return ok
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Save persists the index to path. Directory is created if needed.
// Format: metric tag (1), dimensions (4), n (4), then per vector:
// idLen (4), id bytes, vector (dimensions*4 bytes), little endian.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer fh.Close()
	var metricTag byte
	if f.metric == MetricL2 {
		metricTag = 1
	}
	if err := binary.Write(fh, binary.LittleEndian, metricTag); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	if err := binary.Write(fh, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(fh, binary.LittleEndian, uint32(len(f.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range f.ids {
		idBytes := []byte(id)
		if err := binary.Write(fh, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := fh.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := fh.Write(float32SliceToBytes(f.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Metric and dimensions must match. If the file does not exist, no error is
// returned and the index is unchanged. A file that fails to parse is fatal.
func (f *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer fh.Close()
	var metricTag byte
	if err := binary.Read(fh, binary.LittleEndian, &metricTag); err != nil {
		return fmt.Errorf("read metric: %w", err)
	}
	fileMetric := MetricCosine
	if metricTag == 1 {
		fileMetric = MetricL2
	}
	if fileMetric != f.metric {
		return fmt.Errorf("metric mismatch: file has %s, index expects %s", fileMetric, f.metric)
	}
	var dim, n uint32
	if err := binary.Read(fh, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != f.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, f.dimensions)
	}
	if err := binary.Read(fh, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	// Parse into locals first so a truncated or corrupt file never leaves
	// the index partially loaded.
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	byID := make(map[string]int, n)
	buf := make([]byte, f.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(fh, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(fh, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(fh, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		id := string(idBytes)
		byID[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
	f.vectors = vectors
	f.byID = byID
	return nil
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// CosineSimilarity returns cosine similarity between two normalized vectors (0-1).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return math.Max(0, math.Min(1, dot))
}
