package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiken/internal/models"
	"go.uber.org/zap"
)

// maxLineBytes bounds a single JSONL record. Transcript segments are short;
// anything past 1 MiB is malformed input.
const maxLineBytes = 1 << 20

// ReadRecords parses newline-delimited JSON source records. Lines that fail
// to parse or validate are skipped with a warning rather than aborting the
// whole file.
func ReadRecords(r io.Reader, logger *zap.Logger) ([]models.SourceRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []models.SourceRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.SourceRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			if logger != nil {
				logger.Warn("skipping malformed record", zap.Int("line", lineNo), zap.Error(err))
			}
			continue
		}
		if err := rec.Locator.Validate(); err != nil {
			if logger != nil {
				logger.Warn("skipping invalid record", zap.Int("line", lineNo), zap.Error(err))
			}
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

// SessionFromFilename derives the session name from a record file name: the
// base name up to the first underscore, or the full base name without
// extension when there is none. "algo101_week3.jsonl" belongs to session
// "algo101".
func SessionFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// IngestFile reads a JSONL record file and runs the ingest pass for the
// session derived from its name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	defer f.Close()

	records, err := ReadRecords(f, p.logger)
	if err != nil {
		return nil, err
	}
	return p.IngestRecords(ctx, SessionFromFilename(path), records)
}
