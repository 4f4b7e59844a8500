package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func unit(vals ...float32) []float32 {
	return vals
}

func TestFlatIndexAddAndSearch(t *testing.T) {
	idx, err := NewFlatIndex(3, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	added, err := idx.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{unit(1, 0, 0), unit(0, 1, 0), unit(0, 0, 1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	hits, err := idx.Search(ctx, unit(1, 0, 0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("top hit = %s, want a", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Error("hits not ordered by score")
	}
}

func TestFlatIndexAddIsIdempotent(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricCosine)
	ctx := context.Background()
	if _, err := idx.Add(ctx, []string{"a"}, [][]float32{unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	added, err := idx.Add(ctx, []string{"a", "b"}, [][]float32{unit(1, 0), unit(0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("re-adding existing ID: added = %d, want 1", added)
	}
	if idx.Size() != 2 {
		t.Errorf("size = %d, want 2", idx.Size())
	}
}

func TestFlatIndexSearchEmpty(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricCosine)
	_, err := idx.Search(context.Background(), unit(1, 0), 5)
	if !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("got %v, want ErrIndexEmpty", err)
	}
}

func TestFlatIndexTieBreaksOnID(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricCosine)
	ctx := context.Background()
	// Identical vectors, so scores tie exactly.
	if _, err := idx.Add(ctx, []string{"zzz", "aaa"}, [][]float32{unit(1, 0), unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, unit(1, 0), 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != "aaa" || hits[1].ID != "zzz" {
		t.Errorf("tie order: got %s, %s; want aaa, zzz", hits[0].ID, hits[1].ID)
	}
}

func TestFlatIndexL2Metric(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricL2)
	ctx := context.Background()
	if _, err := idx.Add(ctx, []string{"near", "far"}, [][]float32{unit(1, 1), unit(5, 5)}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, unit(1, 1), 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].ID != "near" {
		t.Errorf("top hit = %s, want near", hits[0].ID)
	}
	if hits[0].Score != 0 {
		t.Errorf("exact match score = %v, want 0 (negated distance)", hits[0].Score)
	}
}

func TestFlatIndexSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	ctx := context.Background()

	idx, _ := NewFlatIndex(3, MetricCosine)
	if _, err := idx.Add(ctx, []string{"a", "b"}, [][]float32{unit(1, 0, 0), unit(0, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	restored, _ := NewFlatIndex(3, MetricCosine)
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}
	if restored.Size() != 2 {
		t.Fatalf("restored size = %d, want 2", restored.Size())
	}

	orig, _ := idx.Search(ctx, unit(1, 0, 0), 2)
	got, _ := restored.Search(ctx, unit(1, 0, 0), 2)
	for i := range orig {
		if orig[i].ID != got[i].ID || orig[i].Score != got[i].Score {
			t.Errorf("hit %d differs after reload: %+v vs %+v", i, orig[i], got[i])
		}
	}
}

func TestFlatIndexLoadMissingFileIsNoop(t *testing.T) {
	idx, _ := NewFlatIndex(3, MetricCosine)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("size = %d, want 0", idx.Size())
	}
}

func TestFlatIndexLoadCorruptFileLeavesIndexIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	ctx := context.Background()

	saved, _ := NewFlatIndex(2, MetricCosine)
	if _, err := saved.Add(ctx, []string{"a", "b"}, [][]float32{unit(1, 0), unit(0, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := saved.Save(path); err != nil {
		t.Fatal(err)
	}
	full, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Truncate mid-record so parsing fails after the header.
	if err := os.WriteFile(path, full[:len(full)-4], 0644); err != nil {
		t.Fatal(err)
	}

	idx, _ := NewFlatIndex(2, MetricCosine)
	if _, err := idx.Add(ctx, []string{"kept"}, [][]float32{unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Load(path); err == nil {
		t.Fatal("expected error loading truncated file")
	}
	if idx.Size() != 1 || !idx.Contains("kept") {
		t.Errorf("failed load altered index state: size = %d", idx.Size())
	}
}

func TestFlatIndexLoadRejectsMetricMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	cosine, _ := NewFlatIndex(2, MetricCosine)
	if _, err := cosine.Add(context.Background(), []string{"a"}, [][]float32{unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := cosine.Save(path); err != nil {
		t.Fatal(err)
	}
	l2, _ := NewFlatIndex(2, MetricL2)
	if err := l2.Load(path); err == nil {
		t.Error("expected metric mismatch error")
	}
}

func TestFlatIndexVectorReturnsCopy(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricCosine)
	if _, err := idx.Add(context.Background(), []string{"a"}, [][]float32{unit(1, 0)}); err != nil {
		t.Fatal(err)
	}
	vec, ok := idx.Vector("a")
	if !ok {
		t.Fatal("vector not found")
	}
	vec[0] = 42
	again, _ := idx.Vector("a")
	if again[0] != 1 {
		t.Error("mutating the returned vector changed index state")
	}
	if _, ok := idx.Vector("missing"); ok {
		t.Error("found a vector that was never added")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity(unit(1, 0), unit(1, 0)); got != 1 {
		t.Errorf("identical vectors: got %v, want 1", got)
	}
	if got := CosineSimilarity(unit(1, 0), unit(0, 1)); got != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
	if got := CosineSimilarity(unit(1, 0), unit(-1, 0)); got != 0 {
		t.Errorf("opposed vectors clamp to 0: got %v", got)
	}
}
