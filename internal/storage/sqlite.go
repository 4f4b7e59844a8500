package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shiken/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		session TEXT NOT NULL,
		id TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		start_seconds REAL NOT NULL DEFAULT 0,
		end_seconds REAL NOT NULL DEFAULT 0,
		slide_number INTEGER NOT NULL DEFAULT 0,
		question_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session, id)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session);

	CREATE TABLE IF NOT EXISTS topic_assignments (
		session TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (session, topic_id, chunk_id)
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_topic ON topic_assignments(session, topic_id);

	CREATE TABLE IF NOT EXISTS citations (
		session TEXT NOT NULL,
		id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		display_text TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		start_seconds REAL NOT NULL DEFAULT 0,
		end_seconds REAL NOT NULL DEFAULT 0,
		slide_number INTEGER NOT NULL DEFAULT 0,
		question_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session, id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateChunks inserts chunks for a session. Chunks whose IDs already exist
// in the session are ignored (content-addressed identity).
func (s *SQLiteStorage) CreateChunks(ctx context.Context, session string, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO chunks
		 (session, id, source_kind, source_id, start_seconds, end_seconds, slide_number, question_id, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		loc := ch.Locator
		if _, err := stmt.ExecContext(ctx, session, ch.ID, string(loc.SourceKind), loc.SourceID,
			loc.StartSeconds, loc.EndSeconds, loc.SlideNumber, loc.QuestionID, ch.Text); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by session and ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, session, id string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_kind, source_id, start_seconds, end_seconds, slide_number, question_id, text
		 FROM chunks WHERE session = ? AND id = ?`, session, id)
	ch, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChunksBySession returns all chunks for a session ordered by ID.
func (s *SQLiteStorage) GetChunksBySession(ctx context.Context, session string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_kind, source_id, start_seconds, end_seconds, slide_number, question_id, text
		 FROM chunks WHERE session = ? ORDER BY id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var ch models.Chunk
	var kind string
	if err := row.Scan(&ch.ID, &kind, &ch.Locator.SourceID, &ch.Locator.StartSeconds,
		&ch.Locator.EndSeconds, &ch.Locator.SlideNumber, &ch.Locator.QuestionID, &ch.Text); err != nil {
		return nil, err
	}
	ch.Locator.SourceKind = models.SourceKind(kind)
	return &ch, nil
}

// CountChunks returns the total number of stored chunks across sessions.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// ReplaceAssignments replaces the full assignment set for a session. Partial
// updates are not supported; the mapper regenerates assignments wholesale.
func (s *SQLiteStorage) ReplaceAssignments(ctx context.Context, session string, assignments []models.TopicAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_assignments WHERE session = ?`, session); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO topic_assignments (session, topic_id, chunk_id, score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare assignment insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, session, a.TopicID, a.ChunkID, a.Score); err != nil {
			return fmt.Errorf("insert assignment %s/%s: %w", a.TopicID, a.ChunkID, err)
		}
	}
	return tx.Commit()
}

// GetAssignments returns all assignments for a session ordered by topic then chunk.
func (s *SQLiteStorage) GetAssignments(ctx context.Context, session string) ([]models.TopicAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic_id, chunk_id, score FROM topic_assignments
		 WHERE session = ? ORDER BY topic_id, chunk_id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// GetAssignmentsByTopic returns assignments for one topic in a session ordered by chunk.
func (s *SQLiteStorage) GetAssignmentsByTopic(ctx context.Context, session, topicID string) ([]models.TopicAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic_id, chunk_id, score FROM topic_assignments
		 WHERE session = ? AND topic_id = ? ORDER BY chunk_id`, session, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]models.TopicAssignment, error) {
	var out []models.TopicAssignment
	for rows.Next() {
		var a models.TopicAssignment
		if err := rows.Scan(&a.TopicID, &a.ChunkID, &a.Score); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveCitations upserts citations for a session.
func (s *SQLiteStorage) SaveCitations(ctx context.Context, session string, citations []*models.Citation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin citation save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO citations
		 (session, id, ordinal, display_text, source_kind, source_id, start_seconds, end_seconds, slide_number, question_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare citation save: %w", err)
	}
	defer stmt.Close()
	for _, c := range citations {
		loc := c.Locator
		if _, err := stmt.ExecContext(ctx, session, c.ID, c.Ordinal, c.DisplayText,
			string(loc.SourceKind), loc.SourceID, loc.StartSeconds, loc.EndSeconds, loc.SlideNumber, loc.QuestionID); err != nil {
			return fmt.Errorf("save citation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetCitations returns a session's citations in ordinal order.
func (s *SQLiteStorage) GetCitations(ctx context.Context, session string) ([]*models.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ordinal, display_text, source_kind, source_id, start_seconds, end_seconds, slide_number, question_id
		 FROM citations WHERE session = ? ORDER BY ordinal`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Citation
	for rows.Next() {
		var c models.Citation
		var kind string
		if err := rows.Scan(&c.ID, &c.Ordinal, &c.DisplayText, &kind, &c.Locator.SourceID,
			&c.Locator.StartSeconds, &c.Locator.EndSeconds, &c.Locator.SlideNumber, &c.Locator.QuestionID); err != nil {
			return nil, err
		}
		c.Locator.SourceKind = models.SourceKind(kind)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
