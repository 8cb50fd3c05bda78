package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrecon/internal/chunkset"
	"github.com/dgallion1/docrecon/internal/config"
	"github.com/dgallion1/docrecon/internal/detect"
	"github.com/dgallion1/docrecon/internal/diff"
	"github.com/dgallion1/docrecon/internal/document"
	"github.com/dgallion1/docrecon/internal/reconcile"
)

// PageResult reports how one page fared: which sources failed, whether
// the page degraded, and any page-level error. Nothing is silently
// swallowed.
type PageResult struct {
	Page          int      `json:"page"`
	Degraded      bool     `json:"degraded"`
	FailedSources []string `json:"failed_sources,omitempty"`
	Error         string   `json:"error,omitempty"`
	ChunkCount    int      `json:"chunk_count"`
}

// Result is the full outcome of one parse pass: the committed chunk
// set, the incremental ops, per-page results, and the confidence
// aggregate.
type Result struct {
	ChunkSet   *chunkset.ChunkSet `json:"chunk_set"`
	Ops        []chunkset.Op      `json:"ops"`
	Pages      []PageResult       `json:"pages"`
	Confidence reconcile.Summary  `json:"confidence"`
}

// Processor runs the per-document pipeline: sources fan out per page,
// the reconciler merges, global reading order is assigned sequentially,
// and the diff engine commits the result.
type Processor struct {
	cfg    config.Config
	rec    *reconcile.Reconciler
	engine *diff.Engine
	log    *slog.Logger

	// sources overrides the config-built set; tests inject stubs here.
	sources []detect.Source
}

// NewProcessor builds a processor whose sources follow the config
// toggles.
func NewProcessor(cfg config.Config, engine *diff.Engine, log *slog.Logger) *Processor {
	var sources []detect.Source
	if cfg.ExtractText {
		sources = append(sources, &detect.TextSource{})
	}
	if cfg.PerformOCR {
		sources = append(sources, &detect.OCRSource{
			Binary:        cfg.OCRBinary,
			Language:      cfg.Language,
			MinConfidence: cfg.OCRConfidenceMin,
		})
	}
	if cfg.AnalyzeLayout {
		sources = append(sources, &detect.LayoutSource{Binary: cfg.LayoutBinary})
	}
	if cfg.ExtractTables {
		sources = append(sources, &detect.TableSource{
			Binary:        cfg.TableBinary,
			MinConfidence: cfg.TableConfidenceMin,
		})
	}
	return NewProcessorWithSources(cfg, engine, log, sources)
}

// NewProcessorWithSources builds a processor over an explicit source
// set.
func NewProcessorWithSources(cfg config.Config, engine *diff.Engine, log *slog.Logger, sources []detect.Source) *Processor {
	return &Processor{
		cfg: cfg,
		rec: reconcile.New(reconcile.Config{
			OverlapTolerance:     cfg.OverlapTolerance,
			ContainFrac:          cfg.ContainFrac,
			IoUMin:               cfg.IoUMin,
			MergeGapFrac:         cfg.MergeGapFrac,
			TypeDiscount:         cfg.TypeDiscount,
			NeedsReviewThreshold: cfg.NeedsReviewThreshold,
		}),
		engine:  engine,
		log:     log,
		sources: sources,
	}
}

// ParseOptions tweak a single parse request.
type ParseOptions struct {
	// ForceOCR runs the OCR source even on pages with a dense native
	// text layer.
	ForceOCR bool

	// Progress, if set, is called as the parse moves between phases.
	Progress func(status JobStatus, phase string)
}

// ParseDocument processes every page of a document and commits the
// resulting chunk set. Pages run in parallel; global reading order is
// assigned in a second, strictly sequential pass.
func (p *Processor) ParseDocument(ctx context.Context, doc *document.Document, opts ParseOptions) (*Result, error) {
	if doc.PageCount() == 0 {
		return nil, fmt.Errorf("%w: document has no pages", document.ErrMalformed)
	}

	pageChunks := make([][]chunkset.Chunk, doc.PageCount())
	pageResults := make([]PageResult, doc.PageCount())

	workers := p.cfg.PageWorkers
	if workers <= 0 {
		workers = 4
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, page := range doc.Pages {
		g.Go(func() error {
			chunks, pr := p.processPage(ctx, doc, page, opts)
			pageChunks[i] = chunks
			pageResults[i] = pr
			return nil
		})
	}
	g.Wait() // page failures are recorded, never returned

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Sequential pass: the document-global reading-order counter is
	// never touched inside the parallel stage.
	var all []chunkset.Chunk
	pos := 0
	for i := range pageChunks {
		for _, c := range pageChunks[i] {
			c.Position = pos
			pos++
			all = append(all, c)
		}
	}

	if opts.Progress != nil {
		opts.Progress(StatusDiffing, "committing chunk set")
	}
	set, ops, err := p.engine.Apply(ctx, doc.ID, doc.ContentHash, all)
	if err != nil {
		return nil, err
	}

	return &Result{
		ChunkSet:   set,
		Ops:        ops,
		Pages:      pageResults,
		Confidence: p.rec.Summarize(set.Chunks),
	}, nil
}

// processPage fans the sources out concurrently, waits for all of them
// to complete or fail, then reconciles. The reconciler never observes a
// partial source set.
func (p *Processor) processPage(ctx context.Context, doc *document.Document, page *document.Page, opts ParseOptions) ([]chunkset.Chunk, PageResult) {
	pr := PageResult{Page: page.Index}
	log := p.log.With("doc_id", doc.ID, "page", page.Index)

	type sourceResult struct {
		kind detect.Kind
		dets []detect.Detection
		err  error
	}

	timeout := p.cfg.SourceTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	sources := p.pageSources(page, opts)
	results := make([]sourceResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			dets, err := src.Detect(sctx, page)
			results[i] = sourceResult{kind: src.Kind(), dets: dets, err: err}
		}()
	}
	wg.Wait()

	var dets []detect.Detection
	failed := 0
	for _, r := range results {
		if r.err != nil {
			log.Warn("source failed", "source", r.kind, "error", r.err)
			pr.Degraded = true
			pr.FailedSources = append(pr.FailedSources, string(r.kind))
			failed++
			continue
		}
		dets = append(dets, r.dets...)
	}

	if len(sources) > 0 && failed == len(sources) {
		pr.Error = "all sources failed"
		return nil, pr
	}

	chunks, err := p.rec.Page(doc.ID, page.Index, page, dets)
	if err != nil {
		// Invariant violations fail the page only.
		log.Error("reconciliation failed", "error", err)
		pr.Error = err.Error()
		return nil, pr
	}
	pr.ChunkCount = len(chunks)
	return chunks, pr
}

// pageSources selects which sources run for this page. OCR runs only
// when the native character density is below the configured threshold,
// or when forced.
func (p *Processor) pageSources(page *document.Page, opts ParseOptions) []detect.Source {
	needOCR := opts.ForceOCR || page.CharDensity < p.cfg.OCRDensityThreshold
	var out []detect.Source
	for _, s := range p.sources {
		if s.Kind() == detect.KindOCR && !needOCR {
			continue
		}
		out = append(out, s)
	}
	return out
}
