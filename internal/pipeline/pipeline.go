package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"photomap/internal/fsutil"
	"photomap/internal/logging"
	"photomap/internal/photo"
	"photomap/internal/storage"
)

var (
	// ErrBusy is returned by Submit while another batch is importing.
	ErrBusy = errors.New("an import is already running")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("pipeline stopped")
)

// ResultKind tells subscribers what a Result reports.
type ResultKind string

const (
	KindProgress  ResultKind = "progress"
	KindCompleted ResultKind = "completed"
	KindFailed    ResultKind = "failed"
)

// Job is one import batch.
type Job struct {
	ID     string         `json:"id"`
	Source string         `json:"source"`
	Files  []photo.Source `json:"-"`
}

// Result is published after every file and once when the batch ends.
type Result struct {
	Job      Job            `json:"job"`
	Kind     ResultKind     `json:"kind"`
	Done     int            `json:"done"`
	Total    int            `json:"total"`
	File     string         `json:"file,omitempty"`
	Located  int            `json:"located"`
	Error    error          `json:"-"`
	Message  string         `json:"error,omitempty"`
	Duration time.Duration  `json:"durationNs,omitempty"`
	Records  []photo.Record `json:"-"`
}

// Processor turns a job into records, reporting after each file.
type Processor interface {
	Process(ctx context.Context, job Job, progress func(Result)) Result
}

// CompletionFunc receives a finished batch before subscribers hear about it.
type CompletionFunc func(ctx context.Context, job Job, records []photo.Record)

// Pipeline runs import batches one at a time on a single worker.
type Pipeline struct {
	processor  Processor
	log        *slog.Logger
	jobs       chan Job
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	stopOnce   sync.Once
	store      *storage.Store
	onComplete CompletionFunc
	busy       atomic.Bool
	mu         sync.Mutex
	stopped    bool
	subs       map[int]chan Result
	nextSubID  int
}

// New creates a Pipeline around processor and starts its worker.
func New(ctx context.Context, processor Processor, logger *slog.Logger, store *storage.Store, onComplete CompletionFunc) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor:  processor,
		log:        logger,
		jobs:       make(chan Job, 1),
		cancel:     cancel,
		store:      store,
		onComplete: onComplete,
		subs:       make(map[int]chan Result),
	}
	p.wg.Add(1)
	go p.worker(ctx)
	return p
}

// NewJob builds a job with a fresh id, keeping only supported files.
func NewJob(source string, files []photo.Source) Job {
	kept := make([]photo.Source, 0, len(files))
	for _, f := range files {
		if fsutil.IsSupported(f.Name, f.MediaType) {
			kept = append(kept, f)
		}
	}
	return Job{ID: uuid.NewString(), Source: source, Files: kept}
}

// FolderJob lists the images under root and wraps them in a job.
func FolderJob(root string) (Job, error) {
	files, err := fsutil.ListImages(root)
	if err != nil {
		return Job{}, err
	}
	return NewJob(root, files), nil
}

// Busy reports whether a batch is in flight.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Submit queues a job. Only one batch runs at a time; a second submit while
// one is in flight is rejected with ErrBusy.
func (p *Pipeline) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if !p.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if p.store != nil {
		if err := p.store.RecordBatchQueued(storage.BatchRecord{
			ID:        job.ID,
			Source:    job.Source,
			Status:    "queued",
			FileCount: len(job.Files),
		}); err != nil {
			p.log.Warn("failed to record batch", "batch", job.ID, "error", err)
		}
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		p.busy.Store(false)
		return ErrBusy
	}
}

// Stop cancels the running batch between files and waits for the worker.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()
		p.cancel()
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, job)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, job Job) {
	start := time.Now()
	logging.LogImportStart(p.log, job.ID, job.Source, len(job.Files))
	if p.store != nil {
		if err := p.store.RecordBatchStart(job.ID); err != nil {
			p.log.Warn("failed to record batch start", "batch", job.ID, "error", err)
		}
	}

	res := p.processor.Process(ctx, job, p.broadcast)
	res.Job = job
	res.Duration = time.Since(start)

	if res.Error != nil {
		res.Kind = KindFailed
		res.Message = res.Error.Error()
		logging.LogImportError(p.log, job.ID, res.Duration, res.Error)
		if p.store != nil {
			if err := p.store.RecordBatchResult(job.ID, "failed", res.Done, res.Located, res.Message); err != nil {
				p.log.Warn("failed to record batch result", "batch", job.ID, "error", err)
			}
		}
	} else {
		res.Kind = KindCompleted
		if p.onComplete != nil {
			p.onComplete(ctx, job, res.Records)
		}
		logging.LogImportComplete(p.log, job.ID, res.Duration, len(res.Records), res.Located)
		if p.store != nil {
			if err := p.store.RecordBatchResult(job.ID, "completed", len(res.Records), res.Located, ""); err != nil {
				p.log.Warn("failed to record batch result", "batch", job.ID, "error", err)
			}
			for _, rec := range res.Records {
				if err := p.store.RecordPhotoMetadata(job.ID, rec); err != nil {
					p.log.Warn("failed to record photo", "batch", job.ID, "photo", rec.ID, "error", err)
				}
			}
		}
	}

	p.busy.Store(false)
	p.broadcast(res)
}

// Subscribe returns a channel for receiving results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 64)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "batch", res.Job.ID)
		}
	}
}
