package models

import "testing"

func videoLoc(start, end float64) Locator {
	return Locator{SourceKind: SourceVideo, SourceID: "lec01", StartSeconds: start, EndSeconds: end}
}

func TestChunkIDDeterministic(t *testing.T) {
	loc := videoLoc(10, 20)
	a := ChunkID(loc, "binary search halves the interval")
	b := ChunkID(loc, "binary search halves the interval")
	if a != b {
		t.Errorf("same locator and text produced different IDs: %s vs %s", a, b)
	}
	if c := ChunkID(loc, "different text"); c == a {
		t.Error("different text produced the same ID")
	}
	if c := ChunkID(videoLoc(10, 25), "binary search halves the interval"); c == a {
		t.Error("different position produced the same ID")
	}
}

func TestChunkIDSeparatorsAreUnambiguous(t *testing.T) {
	// Concatenation without separators would collide for these inputs.
	a := ChunkID(Locator{SourceKind: SourceExam, SourceID: "ab", QuestionID: "q"}, "x")
	b := ChunkID(Locator{SourceKind: SourceExam, SourceID: "a", QuestionID: "bq"}, "x")
	if a == b {
		t.Error("shifted field boundaries produced the same ID")
	}
}

func TestLocatorValidate(t *testing.T) {
	cases := []struct {
		name    string
		loc     Locator
		wantErr bool
	}{
		{"valid video", videoLoc(0, 30), false},
		{"valid slide", Locator{SourceKind: SourceSlide, SourceID: "deck", SlideNumber: 3}, false},
		{"valid exam", Locator{SourceKind: SourceExam, SourceID: "final", QuestionID: "2a"}, false},
		{"missing source id", Locator{SourceKind: SourceVideo}, true},
		{"slide without number", Locator{SourceKind: SourceSlide, SourceID: "deck"}, true},
		{"exam without question", Locator{SourceKind: SourceExam, SourceID: "final"}, true},
		{"inverted time range", videoLoc(30, 10), true},
		{"unknown kind", Locator{SourceKind: "book", SourceID: "x"}, true},
	}
	for _, c := range cases {
		err := c.loc.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestLocatorKeyEquality(t *testing.T) {
	a := videoLoc(10, 20)
	b := videoLoc(10, 20)
	if a.Key() != b.Key() {
		t.Error("equal locators produced different keys")
	}
	if a.Key() == videoLoc(10, 21).Key() {
		t.Error("different end time produced the same key")
	}
}

func TestLocatorDisplayText(t *testing.T) {
	cases := []struct {
		loc  Locator
		want string
	}{
		{videoLoc(3723, 3750), "[vid 01:02:03]"},
		{Locator{SourceKind: SourceSlide, SourceID: "deck", SlideNumber: 7}, "[slide 7]"},
		{Locator{SourceKind: SourceExam, SourceID: "final", QuestionID: "2a"}, "[exam 2a]"},
	}
	for _, c := range cases {
		if got := c.loc.DisplayText(); got != c.want {
			t.Errorf("DisplayText() = %q, want %q", got, c.want)
		}
	}
}

func TestCitationIDFollowsLocator(t *testing.T) {
	if CitationID(videoLoc(10, 20)) != CitationID(videoLoc(10, 20)) {
		t.Error("equal locators produced different citation IDs")
	}
	if CitationID(videoLoc(10, 20)) == CitationID(videoLoc(10, 21)) {
		t.Error("different locators produced the same citation ID")
	}
}

func TestSetEmbeddingWriteOnce(t *testing.T) {
	ch := NewChunk(videoLoc(0, 5), "hello")
	if err := ch.SetEmbedding([]float32{1, 0}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := ch.SetEmbedding([]float32{0, 1}); err == nil {
		t.Error("second set should fail")
	}
	if ch.Embedding[0] != 1 {
		t.Error("embedding overwritten")
	}
}
