package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docrecon/internal/config"
	"github.com/dgallion1/docrecon/internal/diff"
)

const cleanupInterval = 5 * time.Minute

// Orchestrator owns the parse queue, the worker pool, and the job
// registry. Documents flow queue → worker → processor; job state is
// observable throughout via the JobStore.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	processor *Processor
	engine    *diff.Engine
	log       *slog.Logger
	cfg       config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, engine *diff.Engine, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
		processor: NewProcessor(cfg, engine, log),
		engine:    engine,
		log:       log,
		cfg:       cfg,
	}
}

// Start launches the worker pool and the job eviction loop.
func (o *Orchestrator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go o.runWorker(runCtx)
	}

	o.wg.Add(1)
	go o.runCleanup(runCtx)

	o.log.Info("pipeline started", "workers", o.cfg.WorkerCount, "queue_size", o.cfg.MaxQueueSize)
}

func (o *Orchestrator) runWorker(ctx context.Context) {
	defer o.wg.Done()
	w := NewWorker(o.processor, o.log)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-o.queue:
			if !ok {
				return
			}
			w.Process(ctx, job)
		}
	}
}

func (o *Orchestrator) runCleanup(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.jobs.Cleanup(); n > 0 {
				o.log.Debug("evicted expired jobs", "count", n)
			}
		}
	}
}

// Stop drains the pipeline: no new work is accepted and running workers
// finish their current job.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit registers and enqueues a job. A full queue fails the job
// immediately rather than blocking the upload handler.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.Fail("queued", "job queue is full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by id, or nil.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth reports how many jobs are waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Engine exposes the diff engine for read-side API handlers.
func (o *Orchestrator) Engine() *diff.Engine {
	return o.engine
}
