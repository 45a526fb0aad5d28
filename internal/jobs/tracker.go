package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

// DownloadOptions are passed through to the extraction runner. BaseName is
// filled by the tracker with the job id so concurrently running jobs never
// collide on artifact names.
type DownloadOptions struct {
	Quality        string
	OutputFilename string
	BaseName       string
}

// ProgressFunc reports a non-decreasing percentage and a status line.
type ProgressFunc func(percent int, message string)

// Runner invokes the external download capability. It emits zero or more
// progress events and terminates exactly once, either with a result
// descriptor or an error. Implementations must stop emitting once ctx is
// cancelled.
type Runner interface {
	Run(ctx context.Context, url string, opts DownloadOptions, onProgress ProgressFunc) (*Result, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, url string, opts DownloadOptions, onProgress ProgressFunc) (*Result, error)

func (f RunnerFunc) Run(ctx context.Context, url string, opts DownloadOptions, onProgress ProgressFunc) (*Result, error) {
	return f(ctx, url, opts, onProgress)
}

// Tracker orchestrates runner execution on background goroutines and keeps
// the store current. Submit returns as soon as the record exists; pollers
// watch the store catch up with the runner.
type Tracker struct {
	store   *Store
	runner  Runner
	timeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

func NewTracker(store *Store, runner Runner, timeout time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:   store,
		runner:  runner,
		timeout: timeout,
		baseCtx: ctx,
		cancel:  cancel,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit creates a pending job, schedules the runner and returns the
// snapshot without waiting for the download.
func (t *Tracker) Submit(url string, opts DownloadOptions) (*Job, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrCapacity
	}
	t.mu.Unlock()

	job, err := t.store.Create(CreateRequest{
		Kind:    KindVideo,
		URL:     url,
		Quality: opts.Quality,
	})
	if err != nil {
		return nil, err
	}
	opts.BaseName = job.ID

	runCtx := t.baseCtx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	t.mu.Lock()
	t.cancels[job.ID] = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(runCtx, cancel, job.ID, url, opts)

	return job, nil
}

// Status returns the current snapshot of the job.
func (t *Tracker) Status(id string) (*Job, error) {
	return t.store.Get(id)
}

// Cancel aborts a running job, failing it with a cancellation message.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	cancel, ok := t.cancels[id]
	t.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	cancel()
	return nil
}

// Close aborts every in-flight runner and waits for their goroutines.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, jobID, url string, opts DownloadOptions) {
	defer t.wg.Done()
	defer cancel()
	defer func() {
		t.mu.Lock()
		delete(t.cancels, jobID)
		t.mu.Unlock()
	}()

	t.updateProgress(jobID, 5, "initializing download")

	result, err := t.runner.Run(ctx, url, opts, func(percent int, message string) {
		t.updateProgress(jobID, percent, message)
	})
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "download timed out"
		} else if errors.Is(err, context.Canceled) {
			reason = "download cancelled"
		}
		t.finalize(jobID, Update{
			Status:  StatusPtr(StatusFailed),
			Message: StringPtr(reason),
			Error:   StringPtr(reason),
		})
		return
	}

	t.finalize(jobID, Update{
		Status:  StatusPtr(StatusCompleted),
		Message: StringPtr("download complete"),
		Result:  result,
	})
}

func (t *Tracker) updateProgress(jobID string, percent int, message string) {
	status := StatusRunning
	_, err := t.store.Update(jobID, Update{
		Status:          &status,
		ProgressPercent: IntPtr(percent),
		Message:         StringPtr(message),
	})
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		log.Warn("Progress update for job %s dropped: %v", jobID, err)
	}
}

// finalize applies the single terminal transition. A second terminal
// attempt surfaces as ErrInvalidTransition and is logged as a fault rather
// than silently swallowed.
func (t *Tracker) finalize(jobID string, update Update) {
	if _, err := t.store.Update(jobID, update); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Error("Duplicate terminal transition rejected for job %s", jobID)
			return
		}
		log.Error("Failed to finalize job %s: %v", jobID, err)
	}
}
