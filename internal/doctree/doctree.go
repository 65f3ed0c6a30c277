// Package doctree holds the manuscript input model and the emitted block model.
package doctree

// Toggle is a tri-state run property. Unset means the run does not say,
// so the value is inherited from the paragraph or document defaults.
type Toggle int8

const (
	Unset Toggle = iota
	On
	Off
)

// Document is the ordered paragraph stream of a parsed manuscript.
type Document struct {
	Title      string      // Document title (from filename)
	Defaults   RunDefaults // Document-wide declared run defaults
	Paragraphs []Paragraph
}

// RunDefaults holds bold/italic defaults declared by a style.
type RunDefaults struct {
	Bold   Toggle
	Italic Toggle
}

// Paragraph is one body item of the source document: a paragraph, or a
// native table when Table is non-nil.
type Paragraph struct {
	Style    string      // Paragraph style id, empty if none
	Defaults RunDefaults // Resolved from the paragraph style chain
	Runs     []Run
	Table    [][]string // Cell text by row; cell paragraphs joined by "\n"
}

// Run is a raw text run as read from the document.
type Run struct {
	Text   string
	Bold   Toggle
	Italic Toggle
	Color  string // Hex RGB foreground color, e.g. "0000FF"; empty if none
}

// StyledRun is a run with its effective style resolved.
type StyledRun struct {
	Text          string
	Bold          bool
	Italic        bool
	Distinguished bool // Foreground is the question color
}

// SameStyle reports whether two runs render with identical tags.
func (r StyledRun) SameStyle(o StyledRun) bool {
	return r.Bold == o.Bold && r.Italic == o.Italic
}

// BlockType classifies an emitted content block.
type BlockType string

const (
	BlockChapter        BlockType = "chapter"
	BlockSection        BlockType = "section"
	BlockIntroHeading   BlockType = "intro_heading"
	BlockIntroParagraph BlockType = "intro_paragraph"
	BlockNote           BlockType = "note"
	BlockPoetry         BlockType = "poetry"
	BlockResponsive     BlockType = "responsive"
	BlockTable          BlockType = "table"
	BlockTitleRef       BlockType = "title_ref"
	BlockQuestion       BlockType = "question"
	BlockAnswer         BlockType = "answer"
	BlockImage          BlockType = "image"
)

// RequiresChapter reports whether blocks of this type must belong to a chapter.
func (t BlockType) RequiresChapter() bool {
	switch t {
	case BlockSection, BlockIntroHeading, BlockIntroParagraph:
		return false
	}
	return true
}

// Block is a classified, order-stamped unit of content.
type Block struct {
	ID             int64     `json:"block_id"`
	Section        *string   `json:"section_title"`
	Chapter        *string   `json:"chapter_title"`
	Order          int       `json:"block_order"`
	Type           BlockType `json:"block_type"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	TableJSON      *string   `json:"table_json,omitempty"`
	ImageBlobID    *int64    `json:"image_blob_id,omitempty"`

	// In-memory only.
	ChapterSeq     int `json:"-"` // Import ordinal of the owning chapter, 0 if none
	QuestionNumber int `json:"-"` // Per-chapter question number, 0 for non-questions
}

// Section is a section boundary record.
type Section struct {
	Title      string
	OrderIndex int
}

// Chapter is a chapter boundary record.
type Chapter struct {
	Title        string
	OrderIndex   int
	Number       int // Parsed from the heading
	SectionOrder int // OrderIndex of the owning section, 0 if none
}

// QuestionRow is the denormalized question projection.
type QuestionRow struct {
	BlockID        int64
	SectionTitle   *string
	ChapterTitle   *string
	ChapterNumber  int
	QuestionNumber int
	QuestionText   string
}

// AnomalyKind names a recoverable import condition.
type AnomalyKind string

const (
	AnomalyOrphanQuestion AnomalyKind = "orphan_question"
	AnomalyUnknownImage   AnomalyKind = "unknown_image"
	AnomalyOrphanImage    AnomalyKind = "orphan_image"
	AnomalyOrphanTable    AnomalyKind = "orphan_table"
	AnomalyReassigned     AnomalyKind = "reassigned"
)

// Anomaly is a non-fatal condition surfaced after a successful import.
type Anomaly struct {
	Kind    AnomalyKind `json:"kind"`
	Message string      `json:"message"`
}

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SameString compares two nullable strings.
func SameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
