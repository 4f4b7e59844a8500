// Package chunker splits normalized source records into bounded-size chunks.
package chunker

import (
	"strings"

	"github.com/hyperjump/shiken/internal/models"
	"github.com/hyperjump/shiken/pkg/utils"
)

// Chunker splits source records on sentence and paragraph boundaries into
// chunks of at most maxChars characters, never splitting mid-word and never
// overlapping, so each chunk maps 1:1 onto a source span. Chunking is
// deterministic: the same input always yields the same chunk IDs.
type Chunker struct {
	maxChars        int
	minSegmentChars int
}

// New creates a chunker. maxChars bounds chunk text length; records shorter
// than minSegmentChars are merged into the following record of the same
// source before splitting.
func New(maxChars, minSegmentChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = 500
	}
	return &Chunker{maxChars: maxChars, minSegmentChars: minSegmentChars}
}

// Chunk converts records into chunks. Records with empty text are skipped.
// A record whose text fits within the limit becomes exactly one chunk.
func (c *Chunker) Chunk(records []models.SourceRecord) []*models.Chunk {
	merged := c.mergeShort(records)
	var chunks []*models.Chunk
	for _, rec := range merged {
		for _, part := range c.split(rec.Text) {
			chunks = append(chunks, models.NewChunk(rec.Locator, part))
		}
	}
	return chunks
}

// mergeShort concatenates runs of consecutive short records that share a
// source kind and source ID, keeping the first record's locator. This
// preserves context for one-line transcript segments without breaking the
// chunk-to-span citation mapping across sources.
func (c *Chunker) mergeShort(records []models.SourceRecord) []models.SourceRecord {
	var out []models.SourceRecord
	var buf *models.SourceRecord
	flush := func() {
		if buf != nil {
			out = append(out, *buf)
			buf = nil
		}
	}
	for _, rec := range records {
		text := normalizeParagraphs(rec.Text)
		if text == "" {
			continue
		}
		rec.Text = text
		if c.minSegmentChars <= 0 || len(text) >= c.minSegmentChars {
			flush()
			out = append(out, rec)
			continue
		}
		if buf != nil && buf.Locator.SourceKind == rec.Locator.SourceKind && buf.Locator.SourceID == rec.Locator.SourceID {
			buf.Text += " " + text
			if rec.Locator.EndSeconds > buf.Locator.EndSeconds {
				buf.Locator.EndSeconds = rec.Locator.EndSeconds
			}
			if len(buf.Text) >= c.minSegmentChars {
				flush()
			}
			continue
		}
		flush()
		r := rec
		buf = &r
	}
	flush()
	return out
}

// split breaks text into parts of at most maxChars, preferring paragraph then
// sentence boundaries and falling back to word boundaries for oversized
// sentences.
func (c *Chunker) split(text string) []string {
	if len(text) <= c.maxChars {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, para := range splitParagraphs(text) {
		for _, sent := range splitSentences(para) {
			if len(sent) > c.maxChars {
				flush()
				parts = append(parts, splitWords(sent, c.maxChars)...)
				continue
			}
			if cur.Len() > 0 && cur.Len()+1+len(sent) > c.maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(sent)
		}
		// Paragraph boundary: never join sentences across paragraphs.
		flush()
	}
	flush()
	return parts
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = utils.NormalizeText(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeParagraphs collapses whitespace within each paragraph but keeps the
// blank-line separators, so split can still see paragraph boundaries.
func normalizeParagraphs(text string) string {
	return strings.Join(splitParagraphs(text), "\n\n")
}

// splitSentences breaks text after '.', '!' or '?' followed by a space.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && text[i+1] == ' ' {
			sent := strings.TrimSpace(text[start : i+1])
			if sent != "" {
				out = append(out, sent)
			}
			start = i + 2
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// splitWords packs words greedily into parts of at most maxChars without
// splitting mid-word. A single word longer than maxChars becomes its own part.
func splitWords(text string, maxChars int) []string {
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(w) > maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
