// Package engine runs batch probes over many URLs, selects tracks from
// parsed results and turns them into download plans.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// DefaultThreads is the batch worker count when none is configured.
const DefaultThreads = 8

// Common errors.
var (
	ErrNoParser = errors.New("engine: parser is required")
	ErrNoURLs   = errors.New("engine: no URLs to probe")
)

// Config controls a batch run.
type Config struct {
	Threads        int
	Headers        map[string]string
	CheckpointPath string // empty disables resume
	Progress       bool   // send updates on Progress(); the caller must drain it
	Logger         *slog.Logger
}

// Engine is the batch probe orchestrator.
type Engine struct {
	cfg        Config
	parser     Parser
	progressCh chan ProgressUpdate
	logger     *slog.Logger
	closeOnce  sync.Once
}

// New creates an Engine.
func New(p Parser, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, ErrNoParser
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		cfg:        cfg,
		parser:     p,
		progressCh: make(chan ProgressUpdate, 100),
		logger:     logger,
	}, nil
}

// Run probes every URL and returns one job per distinct normalized URL,
// in input order. Results already recorded in the checkpoint are reused.
// The checkpoint is kept while some job still needs a retry and removed
// once every job has a final result.
func (e *Engine) Run(ctx context.Context, urls []string) ([]*Job, error) {
	jobs := e.jobs(urls)
	if len(jobs) == 0 {
		return nil, ErrNoURLs
	}

	cp := e.loadCheckpoint()

	pool, err := NewWorkerPool(e.cfg.Threads, e.logger)
	if err != nil {
		return nil, err
	}
	defer pool.Stop()

	var done atomic.Int64
	total := len(jobs)

	for _, job := range jobs {
		key := urlnorm.Normalize(job.URL)
		if res, ok := cp.Done(key); ok {
			job.Result = res
			job.Resumed = true
			e.sendProgress(ctx, job, int(done.Add(1)), total, nil)
			continue
		}

		err := pool.Submit(func() error {
			if err := ctx.Err(); err != nil {
				job.Result = models.NewFailedResult(job.URL, key, models.ManifestUnknown, models.StatusFetchFailed, err.Error())
				e.sendProgress(ctx, job, int(done.Add(1)), total, err)
				return err
			}

			log := e.logger.With("job", job.ID, "url", job.URL)
			log.Debug("probing")
			res := e.parser.Parse(ctx, job.URL, e.cfg.Headers)
			job.Result = res
			if isFinal(res) {
				cp.MarkDone(key, res)
			}
			log.Debug("probed", "status", res.Status, "tracks", len(res.Tracks()))
			e.sendProgress(ctx, job, int(done.Add(1)), total, nil)
			return nil
		})
		if err != nil {
			job.Result = models.NewFailedResult(job.URL, key, models.ManifestUnknown, models.StatusParseError, err.Error())
		}
	}

	if err := pool.Wait(); err != nil {
		e.logger.Warn("batch finished with failures", "err", err)
	}

	pending := false
	for _, job := range jobs {
		if job.Result == nil {
			job.Result = models.NewFailedResult(job.URL, urlnorm.Normalize(job.URL), models.ManifestUnknown, models.StatusParseError, "job panicked")
		}
		if !isFinal(job.Result) {
			pending = true
		}
	}
	e.finishCheckpoint(cp, pending)

	completed, failed, elapsed := pool.Stats()
	e.logger.Info("batch complete", "jobs", total, "probed", completed, "failed", failed, "resumed", total-int(completed+failed), "elapsed", elapsed)

	return jobs, ctx.Err()
}

// jobs creates one job per distinct URL.
func (e *Engine) jobs(urls []string) []*Job {
	seen := make(map[string]bool, len(urls))
	jobs := make([]*Job, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		key := urlnorm.Normalize(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		jobs = append(jobs, &Job{ID: uuid.NewString(), URL: u})
	}
	return jobs
}

func (e *Engine) loadCheckpoint() *Checkpoint {
	if e.cfg.CheckpointPath == "" {
		return NewCheckpoint()
	}
	cp, err := LoadCheckpoint(e.cfg.CheckpointPath)
	if err != nil {
		e.logger.Warn("ignoring unreadable checkpoint", "path", e.cfg.CheckpointPath, "err", err)
		return NewCheckpoint()
	}
	if cp == nil {
		return NewCheckpoint()
	}
	e.logger.Info("resuming from checkpoint", "path", e.cfg.CheckpointPath, "done", cp.Len())
	return cp
}

func (e *Engine) finishCheckpoint(cp *Checkpoint, pending bool) {
	path := e.cfg.CheckpointPath
	if path == "" {
		return
	}
	if pending {
		if err := cp.Save(path); err != nil {
			e.logger.Error("save checkpoint", "path", path, "err", err)
		}
		return
	}
	if err := cp.Delete(path); err != nil {
		e.logger.Warn("remove checkpoint", "path", path, "err", err)
	}
}

// sendProgress sends a progress update when progress reporting is on.
func (e *Engine) sendProgress(ctx context.Context, job *Job, done, total int, err error) {
	if !e.cfg.Progress {
		return
	}
	update := ProgressUpdate{
		JobID:     job.ID,
		URL:       job.URL,
		Resumed:   job.Resumed,
		Completed: err == nil,
		Error:     err,
		Done:      done,
		Total:     total,
	}
	if job.Result != nil {
		update.Status = job.Result.Status
	}
	select {
	case e.progressCh <- update:
	case <-ctx.Done():
	}
}

// Plan selects tracks from a finished job and builds its download plan.
func (e *Engine) Plan(job *Job, selector, output string) (*Plan, error) {
	if job == nil {
		return nil, ErrNoTracks
	}
	selected, err := SelectTracks(job.Result, selector)
	if err != nil {
		return nil, err
	}
	return BuildPlan(job.Result, selected, output)
}

// Progress returns the progress update channel.
func (e *Engine) Progress() <-chan ProgressUpdate {
	return e.progressCh
}

// Close releases engine resources.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.progressCh) })
	return nil
}
