// Package store persists content blocks in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS brhc_sections (
	section_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	section_title TEXT NOT NULL,
	order_index   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS brhc_chapters (
	chapter_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	section_id     INTEGER REFERENCES brhc_sections(section_id),
	chapter_title  TEXT NOT NULL,
	chapter_number INTEGER,
	order_index    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS doc_blocks (
	block_id        INTEGER PRIMARY KEY,
	section_title   TEXT,
	chapter_title   TEXT,
	block_order     INTEGER NOT NULL,
	block_type      TEXT NOT NULL,
	raw_text        TEXT,
	normalized_text TEXT,
	table_json      TEXT,
	image_blob_id   INTEGER,
	emit_seq        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_doc_blocks_order ON doc_blocks(section_title, chapter_title, block_order, block_id);
CREATE INDEX IF NOT EXISTS idx_doc_blocks_type ON doc_blocks(block_type);
CREATE TABLE IF NOT EXISTS d_questions (
	question_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	block_id        INTEGER NOT NULL,
	question_number INTEGER NOT NULL,
	question_text   TEXT NOT NULL,
	section_title   TEXT,
	chapter_title   TEXT
);
CREATE INDEX IF NOT EXISTS idx_d_questions_block ON d_questions(block_id);
CREATE TABLE IF NOT EXISTS questions (
	question_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	section_title   TEXT,
	chapter_title   TEXT,
	chapter_number  INTEGER,
	content_type    TEXT NOT NULL DEFAULT 'question',
	question_number INTEGER NOT NULL,
	question_text   TEXT NOT NULL,
	answer_text     TEXT
);
CREATE TABLE IF NOT EXISTS brhc_images (
	image_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	filename    TEXT NOT NULL,
	description TEXT,
	image_blob  BLOB
);
CREATE TABLE IF NOT EXISTS brhc_image_block_map (
	image_id INTEGER NOT NULL,
	block_id INTEGER NOT NULL,
	PRIMARY KEY (image_id, block_id)
);
CREATE TABLE IF NOT EXISTS import_runs (
	run_id       TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	counts_json  TEXT NOT NULL,
	anomalies    TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
`

// Store is a SQLite-backed block store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens the database at path. Write transactions take the write lock
// at BEGIN so contention surfaces before any statement runs.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates any missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.log.Debug("schema ready")
	return nil
}

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// AddImage registers an image file and returns its id.
func (s *Store) AddImage(ctx context.Context, filename string, blob []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO brhc_images (filename, description, image_blob) VALUES (?, ?, ?)`,
		filename, "Imported image: "+filename, blob)
	if err != nil {
		return 0, fmt.Errorf("add image %s: %w", filename, err)
	}
	return res.LastInsertId()
}

// LinkImage attaches an image to a block.
func (s *Store) LinkImage(ctx context.Context, imageID, blockID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO brhc_image_block_map (image_id, block_id) VALUES (?, ?)`, imageID, blockID)
	if err != nil {
		return fmt.Errorf("link image %d to block %d: %w", imageID, blockID, err)
	}
	return nil
}
