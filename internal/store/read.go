package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

const blockColumns = `block_id, section_title, chapter_title, block_order, block_type,
		raw_text, normalized_text, table_json, image_blob_id`

// Stats summarizes the persisted content.
type Stats struct {
	Blocks    map[string]int    `json:"blocks"`
	Questions []ChapterQuestion `json:"questions_per_chapter"`
	Images    int               `json:"images"`
	Linked    int               `json:"linked_images"`
}

// ChapterQuestion is a per-chapter question count.
type ChapterQuestion struct {
	Section *string `json:"section_title"`
	Chapter *string `json:"chapter_title"`
	Count   int     `json:"count"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(sc scanner, extra ...any) (doctree.Block, error) {
	var (
		b                doctree.Block
		section, chapter sql.NullString
		raw, norm, table sql.NullString
		blobID           sql.NullInt64
		typ              string
	)
	dest := append([]any{&b.ID, &section, &chapter, &b.Order, &typ, &raw, &norm, &table, &blobID}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return b, err
	}
	b.Type = doctree.BlockType(typ)
	b.RawText, b.NormalizedText = raw.String, norm.String
	if section.Valid {
		b.Section = &section.String
	}
	if chapter.Valid {
		b.Chapter = &chapter.String
	}
	if table.Valid {
		b.TableJSON = &table.String
	}
	if blobID.Valid {
		b.ImageBlobID = &blobID.Int64
	}
	return b, nil
}

func scanBlocks(rows *sql.Rows) ([]doctree.Block, error) {
	defer rows.Close()
	var out []doctree.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadBlocks returns every block in emission order with question numbers
// taken from the d_questions projection.
func (s *Store) LoadBlocks(ctx context.Context) ([]doctree.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.block_id, b.section_title, b.chapter_title, b.block_order, b.block_type,
		       b.raw_text, b.normalized_text, b.table_json, b.image_blob_id,
		       COALESCE((SELECT MIN(q.question_number) FROM d_questions q WHERE q.block_id = b.block_id), 0)
		FROM doc_blocks b
		ORDER BY b.emit_seq, b.block_id`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var out []doctree.Block
	for rows.Next() {
		var qnum int
		b, err := scanBlock(rows, &qnum)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.QuestionNumber = qnum
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadSections returns section records in import order.
func (s *Store) LoadSections(ctx context.Context) ([]doctree.Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section_title, order_index FROM brhc_sections ORDER BY order_index`)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()
	var out []doctree.Section
	for rows.Next() {
		var sec doctree.Section
		if err := rows.Scan(&sec.Title, &sec.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// LoadChapters returns chapter records in import order. A chapter whose
// section row no longer exists gets SectionOrder -1.
func (s *Store) LoadChapters(ctx context.Context) ([]doctree.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chapter_title, c.order_index, COALESCE(c.chapter_number, 0),
		       CASE WHEN c.section_id IS NULL THEN 0 ELSE COALESCE(s.order_index, -1) END
		FROM brhc_chapters c
		LEFT JOIN brhc_sections s ON s.section_id = c.section_id
		ORDER BY c.order_index`)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()
	var out []doctree.Chapter
	for rows.Next() {
		var c doctree.Chapter
		if err := rows.Scan(&c.Title, &c.OrderIndex, &c.Number, &c.SectionOrder); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadQuestionRows returns the persisted d_questions projection joined
// with chapter numbers.
func (s *Store) LoadQuestionRows(ctx context.Context) ([]doctree.QuestionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.block_id, q.section_title, q.chapter_title,
		       COALESCE((SELECT MIN(c.chapter_number) FROM brhc_chapters c WHERE c.chapter_title = q.chapter_title), 0),
		       q.question_number, q.question_text
		FROM d_questions q
		ORDER BY q.question_id`)
	if err != nil {
		return nil, fmt.Errorf("query question rows: %w", err)
	}
	defer rows.Close()
	var out []doctree.QuestionRow
	for rows.Next() {
		var (
			r                doctree.QuestionRow
			section, chapter sql.NullString
		)
		if err := rows.Scan(&r.BlockID, &section, &chapter, &r.ChapterNumber, &r.QuestionNumber, &r.QuestionText); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if section.Valid {
			r.SectionTitle = &section.String
		}
		if chapter.Valid {
			r.ChapterTitle = &chapter.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats returns block counts per type and question counts per chapter.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Blocks: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT block_type, COUNT(*) FROM doc_blocks GROUP BY block_type`)
	if err != nil {
		return nil, fmt.Errorf("query block stats: %w", err)
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan block stats: %w", err)
		}
		st.Blocks[typ] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT section_title, chapter_title, COUNT(*)
		FROM d_questions
		GROUP BY section_title, chapter_title
		ORDER BY MIN(question_id)`)
	if err != nil {
		return nil, fmt.Errorf("query question stats: %w", err)
	}
	for rows.Next() {
		var cq ChapterQuestion
		var section, chapter sql.NullString
		if err := rows.Scan(&section, &chapter, &cq.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question stats: %w", err)
		}
		if section.Valid {
			cq.Section = &section.String
		}
		if chapter.Valid {
			cq.Chapter = &chapter.String
		}
		st.Questions = append(st.Questions, cq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM brhc_images), (SELECT COUNT(DISTINCT block_id) FROM brhc_image_block_map)`,
	).Scan(&st.Images, &st.Linked)
	if err != nil {
		return nil, fmt.Errorf("query image stats: %w", err)
	}
	return st, nil
}

// Runs returns the most recent import history rows, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, filename, content_hash, counts_json, anomalies, created_at
		FROM import_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var created string
		if err := rows.Scan(&r.RunID, &r.Filename, &r.ContentHash, &r.CountsJSON, &r.Anomalies, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
