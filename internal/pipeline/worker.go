package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/brhcimport/internal/parser"
)

// Worker processes a single manuscript job.
type Worker struct {
	importer *Importer
	log      *slog.Logger
}

func NewWorker(importer *Importer, log *slog.Logger) *Worker {
	return &Worker{importer: importer, log: log}
}

// Process parses the upload and imports it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer job.releaseFileData()

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	data := job.FileData()
	doc, err := p.Parse(bytes.NewReader(data), job.Filename)
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	log.Info("parsed manuscript", "paragraphs", len(doc.Paragraphs))

	// Phase 2: Classify, reconcile, validate and store.
	job.SetStatus(StatusImporting, "importing")
	rep, err := w.importer.Import(ctx, doc, job.Filename, ContentHashHex(data), job.Options)
	if err != nil {
		log.Error("import failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "importing")
		return
	}
	job.SetReport(rep)

	if rep.Skipped {
		job.SetStatus(StatusDupSkipped, "dedup")
		return
	}
	job.SetStatus(StatusCompleted, "done")
}
