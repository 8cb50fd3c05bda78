package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docrecon/internal/document"
)

// Worker processes a single document job: load, parse, diff.
type Worker struct {
	processor *Processor
	log       *slog.Logger
}

func NewWorker(processor *Processor, log *slog.Logger) *Worker {
	return &Worker{processor: processor, log: log}
}

// Process runs the full parse pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)

	job.SetStatus(StatusLoading, "loading")
	doc, err := document.Load(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		if errors.Is(err, document.ErrMalformed) {
			log.Error("malformed document", "error", err)
		} else {
			log.Error("load failed", "error", err)
		}
		job.Fail("loading", err.Error())
		return
	}
	defer doc.Cleanup()
	if job.DocID != "" {
		doc.ID = job.DocID
	} else {
		job.DocID = doc.ID
	}

	job.SetStatus(StatusParsing, "parsing")
	result, err := w.processor.ParseDocument(ctx, doc, ParseOptions{
		ForceOCR: job.ForceOCR,
		Progress: job.SetStatus,
	})
	if err != nil {
		log.Error("parse failed", "error", err)
		job.Fail("parsing", fmt.Sprintf("parse: %s", err))
		return
	}

	job.SetResult(result)

	degraded := 0
	failedPages := 0
	for _, pr := range result.Pages {
		if pr.Degraded {
			degraded++
		}
		if pr.Error != "" {
			failedPages++
		}
	}
	log.Info("parse complete",
		"revision", result.ChunkSet.Revision,
		"chunks", len(result.ChunkSet.Chunks),
		"ops", len(result.Ops),
		"degraded_pages", degraded,
		"failed_pages", failedPages,
		"mean_confidence", result.Confidence.Mean,
	)

	if degraded > 0 || failedPages > 0 {
		job.SetStatus(StatusDegraded, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}
