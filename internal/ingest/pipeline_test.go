package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiken/internal/chunker"
	"github.com/hyperjump/shiken/internal/embedding"
	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/internal/storage"
	"github.com/hyperjump/shiken/internal/vector"
)

func newTestPipeline(t *testing.T, embedder embedding.Embedder) (*Pipeline, storage.Storage, *vector.FlatIndex) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "shiken.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := vector.NewFlatIndex(embedder.Dimensions(), vector.MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	ck := chunker.New(500, 50)
	svc := embedding.NewService(embedder, 4, 0)
	return NewPipeline(ck, svc, idx, nil, store, ""), store, idx
}

func sampleRecords() []models.SourceRecord {
	return []models.SourceRecord{
		{
			Locator: models.Locator{SourceKind: models.SourceTranscript, SourceID: "lec01", StartSeconds: 0, EndSeconds: 30},
			Text:    "Binary search requires a sorted array and halves the interval each probe.",
		},
		{
			Locator: models.Locator{SourceKind: models.SourceSlide, SourceID: "deck01", SlideNumber: 2},
			Text:    "Worst case comparisons: floor(log2 n) + 1 for an array of n elements.",
		},
	}
}

func TestIngestRecords(t *testing.T) {
	p, store, idx := newTestPipeline(t, embedding.NewMockEmbedder(8))
	summary, err := p.IngestRecords(context.Background(), "algo101", sampleRecords())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Records != 2 || summary.Chunks != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.NewChunks != 2 || summary.Embedded != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if idx.Size() != 2 {
		t.Errorf("index size = %d, want 2", idx.Size())
	}
	chunks, err := store.GetChunksBySession(context.Background(), "algo101")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("stored %d chunks, want 2", len(chunks))
	}
}

func TestIngestRecordsIsIdempotent(t *testing.T) {
	p, store, idx := newTestPipeline(t, embedding.NewMockEmbedder(8))
	ctx := context.Background()
	if _, err := p.IngestRecords(ctx, "algo101", sampleRecords()); err != nil {
		t.Fatal(err)
	}
	again, err := p.IngestRecords(ctx, "algo101", sampleRecords())
	if err != nil {
		t.Fatal(err)
	}
	if again.NewChunks != 0 {
		t.Errorf("re-ingest inserted %d new chunks, want 0", again.NewChunks)
	}
	if idx.Size() != 2 {
		t.Errorf("index size = %d after re-ingest, want 2", idx.Size())
	}
	count, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("stored chunks = %d after re-ingest, want 2", count)
	}
}

// poisonEmbedder permanently fails batches containing the marker text.
type poisonEmbedder struct {
	inner  *embedding.MockEmbedder
	poison string
}

func (p *poisonEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.inner.Embed(ctx, text)
}

func (p *poisonEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if t == p.poison {
			return nil, fmt.Errorf("embedder rejected text")
		}
	}
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *poisonEmbedder) Dimensions() int { return p.inner.Dimensions() }
func (p *poisonEmbedder) Close() error    { return nil }

func TestIngestRecordsPartialEmbeddingFailure(t *testing.T) {
	poison := "This exact sentence always fails to embed in this test setup."
	p, store, idx := newTestPipeline(t, &poisonEmbedder{inner: embedding.NewMockEmbedder(8), poison: poison})

	records := append(sampleRecords(), models.SourceRecord{
		Locator: models.Locator{SourceKind: models.SourceTranscript, SourceID: "lec02", StartSeconds: 0, EndSeconds: 10},
		Text:    poison,
	})
	summary, err := p.IngestRecords(context.Background(), "algo101", records)
	if err != nil {
		t.Fatalf("partial failure must not abort the pass: %v", err)
	}
	if len(summary.FailedChunkIDs) == 0 {
		t.Fatal("failed chunk IDs not reported")
	}
	if summary.Embedded >= summary.Chunks {
		t.Errorf("summary claims all chunks embedded: %+v", summary)
	}
	// Failed chunks stay out of the vector index but keep their metadata.
	if idx.Size() != summary.Embedded {
		t.Errorf("index size %d != embedded %d", idx.Size(), summary.Embedded)
	}
	count, err := store.CountChunks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if int(count) != summary.Chunks {
		t.Errorf("all chunk metadata should persist: stored %d of %d", count, summary.Chunks)
	}
}

func TestIngestFile(t *testing.T) {
	p, _, idx := newTestPipeline(t, embedding.NewMockEmbedder(8))
	path := filepath.Join(t.TempDir(), "algo101_week3.jsonl")
	content := `{"locator":{"source_kind":"transcript","source_id":"lec01","start_seconds":0,"end_seconds":30},"text":"Binary search requires a sorted array and halves the interval each probe."}
not json at all
{"locator":{"source_kind":"slide","source_id":"deck01"},"text":"missing slide number is invalid"}
{"locator":{"source_kind":"slide","source_id":"deck01","slide_number":2},"text":"Worst case comparisons for binary search: floor(log2 n) plus one."}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	summary, err := p.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Session != "algo101" {
		t.Errorf("session = %q, want algo101", summary.Session)
	}
	// Malformed and invalid lines are skipped.
	if summary.Records != 2 {
		t.Errorf("records = %d, want 2", summary.Records)
	}
	if idx.Size() != 2 {
		t.Errorf("index size = %d, want 2", idx.Size())
	}
}

func TestIngestFileMissing(t *testing.T) {
	p, _, _ := newTestPipeline(t, embedding.NewMockEmbedder(8))
	if _, err := p.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
	var pathErr *os.PathError
	_, err := p.IngestFile(context.Background(), filepath.Join(t.TempDir(), "still-absent.jsonl"))
	if !errors.As(err, &pathErr) {
		t.Errorf("got %v, want wrapped *os.PathError", err)
	}
}

func TestSessionFromFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/data/algo101_week3.jsonl", "algo101"},
		{"algo101.jsonl", "algo101"},
		{"/data/db_intro_part2.jsonl", "db"},
	}
	for _, c := range cases {
		if got := SessionFromFilename(c.in); got != c.want {
			t.Errorf("SessionFromFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
