package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Tx is one import transaction.
type Tx struct {
	tx *sql.Tx
}

// Snapshot is the full content written by one import.
type Snapshot struct {
	Sections  []doctree.Section
	Chapters  []doctree.Chapter
	Blocks    []doctree.Block
	Questions []doctree.QuestionRow
}

// RunRecord is one row of the import history.
type RunRecord struct {
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	CountsJSON  string    `json:"counts"`
	Anomalies   string    `json:"anomalies"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// ImageOwners returns every persisted block that has an attached image.
func (t *Tx) ImageOwners(ctx context.Context) ([]doctree.Block, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+blockColumns+`
		FROM doc_blocks
		WHERE block_id IN (SELECT DISTINCT block_id FROM brhc_image_block_map)
		ORDER BY block_id`)
	if err != nil {
		return nil, fmt.Errorf("query image owners: %w", err)
	}
	return scanBlocks(rows)
}

// MaxBlockID returns the highest persisted block id, 0 when empty.
func (t *Tx) MaxBlockID(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(block_id), 0) FROM doc_blocks`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("max block id: %w", err)
	}
	return id, nil
}

// ImageFilenames returns the lower-cased registered image filenames.
func (t *Tx) ImageFilenames(ctx context.Context) (map[string]bool, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT filename FROM brhc_images`)
	if err != nil {
		return nil, fmt.Errorf("query image filenames: %w", err)
	}
	defer rows.Close()
	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan image filename: %w", err)
		}
		names[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return names, rows.Err()
}

// LatestHash returns the content hash of the most recent import, or "".
func (t *Tx) LatestHash(ctx context.Context) (string, error) {
	var hash string
	err := t.tx.QueryRowContext(ctx,
		`SELECT content_hash FROM import_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest hash: %w", err)
	}
	return hash, nil
}

// Replace deletes all imported content and inserts snap. Images and the
// image/block map are left untouched.
func (t *Tx) Replace(ctx context.Context, snap Snapshot) error {
	for _, table := range []string{"brhc_sections", "brhc_chapters", "doc_blocks"} {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	sectionIDs := make(map[int]int64, len(snap.Sections))
	for _, s := range snap.Sections {
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO brhc_sections (section_title, order_index) VALUES (?, ?)`, s.Title, s.OrderIndex)
		if err != nil {
			return fmt.Errorf("insert section %q: %w", s.Title, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("section id: %w", err)
		}
		sectionIDs[s.OrderIndex] = id
	}

	for _, c := range snap.Chapters {
		var sectionID sql.NullInt64
		if id, ok := sectionIDs[c.SectionOrder]; ok {
			sectionID = sql.NullInt64{Int64: id, Valid: true}
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO brhc_chapters (section_id, chapter_title, chapter_number, order_index) VALUES (?, ?, ?, ?)`,
			sectionID, c.Title, c.Number, c.OrderIndex); err != nil {
			return fmt.Errorf("insert chapter %q: %w", c.Title, err)
		}
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO doc_blocks (
			block_id, section_title, chapter_title, block_order, block_type,
			raw_text, normalized_text, table_json, image_blob_id, emit_seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare block insert: %w", err)
	}
	defer stmt.Close()
	for i, b := range snap.Blocks {
		if _, err := stmt.ExecContext(ctx,
			b.ID, b.Section, b.Chapter, b.Order, string(b.Type),
			b.RawText, b.NormalizedText, b.TableJSON, b.ImageBlobID, i+1); err != nil {
			return fmt.Errorf("insert block %d: %w", b.ID, err)
		}
	}

	return t.ReplaceQuestions(ctx, snap.Questions)
}

// ReplaceQuestions rewrites both question projections.
func (t *Tx) ReplaceQuestions(ctx context.Context, rows []doctree.QuestionRow) error {
	for _, table := range []string{"d_questions", "questions"} {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, r := range rows {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO d_questions (block_id, question_number, question_text, section_title, chapter_title)
			VALUES (?, ?, ?, ?, ?)`,
			r.BlockID, r.QuestionNumber, r.QuestionText, r.SectionTitle, r.ChapterTitle); err != nil {
			return fmt.Errorf("insert d_question %d: %w", r.BlockID, err)
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO questions (section_title, chapter_title, chapter_number, content_type, question_number, question_text, answer_text)
			VALUES (?, ?, ?, 'question', ?, ?, NULL)`,
			r.SectionTitle, r.ChapterTitle, r.ChapterNumber, r.QuestionNumber, r.QuestionText); err != nil {
			return fmt.Errorf("insert question %d: %w", r.BlockID, err)
		}
	}
	return nil
}

// RecordRun appends an import history row.
func (t *Tx) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO import_runs (run_id, filename, content_hash, counts_json, anomalies, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Filename, r.ContentHash, r.CountsJSON, r.Anomalies, r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}
