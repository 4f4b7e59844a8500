package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/shiken/internal/models"
)

// flakyEmbedder fails a configurable number of EmbedBatch calls before
// succeeding, and can permanently reject texts containing a marker.
type flakyEmbedder struct {
	inner     *MockEmbedder
	failFirst int
	poison    string
	calls     int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, fmt.Errorf("transient embedder failure %d", f.calls)
	}
	for _, t := range texts {
		if f.poison != "" && t == f.poison {
			return nil, errors.New("permanent embedder failure")
		}
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }
func (f *flakyEmbedder) Close() error    { return nil }

func testChunks(texts ...string) []*models.Chunk {
	chunks := make([]*models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.NewChunk(models.Locator{
			SourceKind:   models.SourceTranscript,
			SourceID:     "lec01",
			StartSeconds: float64(i * 10),
			EndSeconds:   float64(i*10 + 10),
		}, text)
	}
	return chunks
}

func TestEmbedChunksSetsAllEmbeddings(t *testing.T) {
	svc := NewService(NewMockEmbedder(8), 2, 0)
	chunks := testChunks("one", "two", "three")
	if err := svc.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	for i, ch := range chunks {
		if ch.Embedding == nil {
			t.Errorf("chunk %d not embedded", i)
		}
	}
}

func TestEmbedChunksRetriesOnce(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8), failFirst: 1}
	svc := NewService(flaky, 4, 0)
	chunks := testChunks("alpha", "beta")
	if err := svc.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("retry should recover a single transient failure: %v", err)
	}
	if flaky.calls != 2 {
		t.Errorf("calls = %d, want 2 (fail + retry)", flaky.calls)
	}
}

func TestEmbedChunksPartialFailure(t *testing.T) {
	// Batch size 1 isolates the poisoned chunk in its own batch.
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8), poison: "bad"}
	svc := NewService(flaky, 1, 0)
	chunks := testChunks("good one", "bad", "good two")

	err := svc.EmbedChunks(context.Background(), chunks)
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("got %v, want *EmbeddingError", err)
	}
	failed := embErr.FailedChunkIDs()
	if len(failed) != 1 || failed[0] != chunks[1].ID {
		t.Errorf("failed IDs = %v, want [%s]", failed, chunks[1].ID)
	}
	if chunks[0].Embedding == nil || chunks[2].Embedding == nil {
		t.Error("healthy batches should still be embedded")
	}
	if chunks[1].Embedding != nil {
		t.Error("failed chunk should have no embedding")
	}
}

func TestEmbedChunksSkipsAlreadyEmbedded(t *testing.T) {
	svc := NewService(NewMockEmbedder(8), 4, 0)
	chunks := testChunks("repeat")
	if err := svc.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	first := chunks[0].Embedding
	if err := svc.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatal(err)
	}
	if &chunks[0].Embedding[0] != &first[0] {
		t.Error("already-embedded chunk was re-embedded")
	}
}

func TestEmbedChunksHonorsCancellation(t *testing.T) {
	svc := NewService(NewMockEmbedder(8), 1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.EmbedChunks(ctx, testChunks("a", "b"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestEmbedTextUsesCache(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8)}
	svc := NewService(flaky, 4, 16)
	ctx := context.Background()
	a, err := svc.EmbedText(ctx, "cached text")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.EmbedText(ctx, "cached text")
	if err != nil {
		t.Fatal(err)
	}
	if &a[0] != &b[0] {
		t.Error("second lookup should come from the cache")
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "same text")
	b, _ := e.Embed(ctx, "same text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedder is not deterministic")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v * v)
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("embedding not unit length: %v", norm)
	}
}
