package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/dgallion1/brhcimport/internal/classify"
	"github.com/dgallion1/brhcimport/internal/doctree"
	"github.com/dgallion1/brhcimport/internal/reconcile"
	"github.com/dgallion1/brhcimport/internal/store"
	"github.com/dgallion1/brhcimport/internal/validate"
)

// Options controls one import.
type Options struct {
	Strict bool `json:"strict"`
	DryRun bool `json:"dry_run"`
	Force  bool `json:"force"`
}

// Report is the outcome of one import.
type Report struct {
	RunID       string            `json:"run_id,omitempty"`
	Filename    string            `json:"filename"`
	ContentHash string            `json:"content_hash"`
	Skipped     bool              `json:"duplicate_skipped"`
	DryRun      bool              `json:"dry_run"`
	Blocks      int               `json:"blocks"`
	Counts      classify.Counts   `json:"counts"`
	Anomalies   []doctree.Anomaly `json:"anomalies"`
}

// Importer runs classification, reconciliation and validation, then
// replaces the stored content in one transaction.
type Importer struct {
	store   *store.Store
	log     *slog.Logger
	now     func() time.Time
	backoff func(attempt int) time.Duration
}

func NewImporter(st *store.Store, log *slog.Logger) *Importer {
	return &Importer{
		store:   st,
		log:     log,
		now:     time.Now,
		backoff: Backoff,
	}
}

// Import persists doc. hash identifies the source bytes and is compared to
// the latest recorded run unless opts.Force is set. Any error leaves the
// store unchanged.
func (im *Importer) Import(ctx context.Context, doc *doctree.Document, filename, hash string, opts Options) (rep *Report, err error) {
	log := im.log.With("filename", filename, "content_hash", shortHash(hash))
	rep = &Report{
		Filename:    filename,
		ContentHash: hash,
		DryRun:      opts.DryRun,
		Anomalies:   []doctree.Anomaly{},
	}

	tx, err := im.begin(ctx, log)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	if !opts.Force {
		latest, err := tx.LatestHash(ctx)
		if err != nil {
			return nil, err
		}
		if latest == hash {
			log.Info("duplicate manuscript, skipping")
			rep.Skipped = true
			return rep, nil
		}
	}

	owners, err := tx.ImageOwners(ctx)
	if err != nil {
		return nil, err
	}
	maxID, err := tx.MaxBlockID(ctx)
	if err != nil {
		return nil, err
	}
	known, err := tx.ImageFilenames(ctx)
	if err != nil {
		return nil, err
	}

	res, err := classify.New(classify.Options{
		Strict:      opts.Strict,
		KnownImages: known,
		Logger:      log,
	}).Run(*doc)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	reassigned, err := reconcile.New(owners, maxID).Assign(res.Blocks)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	res.Anomalies = append(res.Anomalies, reassigned...)

	rows := classify.QuestionRows(res.Blocks, res.Chapters)
	if err := validate.Check(res, rows); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	if err := tx.Replace(ctx, store.Snapshot{
		Sections:  res.Sections,
		Chapters:  res.Chapters,
		Blocks:    res.Blocks,
		Questions: rows,
	}); err != nil {
		return nil, err
	}

	rep.RunID = generateULID()
	rep.Blocks = len(res.Blocks)
	rep.Counts = res.Counts
	rep.Anomalies = append(rep.Anomalies, res.Anomalies...)

	countsJSON, err := json.Marshal(rep.Counts)
	if err != nil {
		return nil, fmt.Errorf("marshal counts: %w", err)
	}
	anomaliesJSON, err := json.Marshal(rep.Anomalies)
	if err != nil {
		return nil, fmt.Errorf("marshal anomalies: %w", err)
	}
	if err := tx.RecordRun(ctx, store.RunRecord{
		RunID:       rep.RunID,
		Filename:    filename,
		ContentHash: hash,
		CountsJSON:  string(countsJSON),
		Anomalies:   string(anomaliesJSON),
		CreatedAt:   im.now(),
	}); err != nil {
		return nil, err
	}

	if opts.DryRun {
		log.Info("dry run complete, rolling back", "blocks", rep.Blocks, "anomalies", len(rep.Anomalies))
		return rep, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	log.Info("import committed", "run_id", rep.RunID, "blocks", rep.Blocks, "anomalies", len(rep.Anomalies))
	return rep, nil
}

// begin starts the import transaction, retrying while the database is busy.
func (im *Importer) begin(ctx context.Context, log *slog.Logger) (*store.Tx, error) {
	var lastErr error
	for attempt := range MaxRetries {
		tx, err := im.store.Begin(ctx)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		log.Warn("database busy", "attempt", attempt, "error", err)
		select {
		case <-time.After(im.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("begin after %d attempts: %w", MaxRetries, lastErr)
}

// Verify re-runs structural validation against the persisted content.
func (im *Importer) Verify(ctx context.Context) error {
	res, err := im.loadResult(ctx)
	if err != nil {
		return err
	}
	rows, err := im.store.LoadQuestionRows(ctx)
	if err != nil {
		return err
	}
	if err := validate.Check(res, rows); err != nil {
		return err
	}
	im.log.Info("store verified", "blocks", len(res.Blocks), "questions", len(rows))
	return nil
}

// RebuildQuestions regenerates both question projections from doc_blocks.
func (im *Importer) RebuildQuestions(ctx context.Context) (int, error) {
	res, err := im.loadResult(ctx)
	if err != nil {
		return 0, err
	}
	rows := classify.QuestionRows(res.Blocks, res.Chapters)

	tx, err := im.begin(ctx, im.log)
	if err != nil {
		return 0, err
	}
	if err := tx.ReplaceQuestions(ctx, rows); err != nil {
		return 0, multierr.Append(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	im.log.Info("question projections rebuilt", "questions", len(rows))
	return len(rows), nil
}

// loadResult reads the persisted content back into classification form.
// Chapter ordinals are recovered by walking blocks in emission order.
func (im *Importer) loadResult(ctx context.Context) (*classify.Result, error) {
	blocks, err := im.store.LoadBlocks(ctx)
	if err != nil {
		return nil, err
	}
	sections, err := im.store.LoadSections(ctx)
	if err != nil {
		return nil, err
	}
	chapters, err := im.store.LoadChapters(ctx)
	if err != nil {
		return nil, err
	}

	seq := 0
	for i := range blocks {
		switch {
		case blocks[i].Type == doctree.BlockChapter:
			seq++
			blocks[i].ChapterSeq = seq
		case blocks[i].Chapter != nil:
			blocks[i].ChapterSeq = seq
		}
	}
	return &classify.Result{Blocks: blocks, Sections: sections, Chapters: chapters}, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
