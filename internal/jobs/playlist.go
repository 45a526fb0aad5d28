package jobs

import "sync"

// BatchStatus is derived from the child jobs on every query.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
)

// BatchProgress is the aggregate view over a batch of per-video jobs
// submitted together.
type BatchProgress struct {
	JobID           string      `json:"job_id"`
	Total           int         `json:"total_videos"`
	CompletedCount  int         `json:"completed"`
	SuccessfulCount int         `json:"successful"`
	FailedCount     int         `json:"failed"`
	InProgress      int         `json:"in_progress"`
	Status          BatchStatus `json:"status"`
	Children        []*Job      `json:"results,omitempty"`
}

// Batches maps a playlist submission to its child job ids. The aggregate is
// recomputed from child snapshots on each poll rather than maintained
// incrementally, so it can never drift from the store.
type Batches struct {
	store *Store

	mu      sync.RWMutex
	batches map[string][]string
}

func NewBatches(store *Store) *Batches {
	return &Batches{
		store:   store,
		batches: make(map[string][]string),
	}
}

// Register associates a batch id with its child jobs.
func (b *Batches) Register(batchID string, childIDs []string) {
	ids := make([]string, len(childIDs))
	copy(ids, childIDs)

	b.mu.Lock()
	b.batches[batchID] = ids
	b.mu.Unlock()
}

// Forget drops the batch mapping. Aggregate queries return ErrNotFound
// afterwards, which is distinct from any transport failure on the wire.
func (b *Batches) Forget(batchID string) {
	b.mu.Lock()
	delete(b.batches, batchID)
	b.mu.Unlock()
}

// SweepOrphaned forgets every batch whose children have all left the
// store, so aggregates for long-gone playlists answer ErrNotFound instead
// of an eternal all-failed view. Returns the dropped batch ids.
func (b *Batches) SweepOrphaned() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := make([]string, 0)
	for batchID, childIDs := range b.batches {
		alive := false
		for _, id := range childIDs {
			if _, err := b.store.Get(id); err == nil {
				alive = true
				break
			}
		}
		if !alive {
			delete(b.batches, batchID)
			dropped = append(dropped, batchID)
		}
	}
	return dropped
}

// Aggregate folds the child job snapshots into the batch view.
func (b *Batches) Aggregate(batchID string) (*BatchProgress, error) {
	b.mu.RLock()
	childIDs, ok := b.batches[batchID]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	progress := &BatchProgress{
		JobID:    batchID,
		Total:    len(childIDs),
		Children: make([]*Job, 0, len(childIDs)),
	}

	anyStarted := false
	for _, id := range childIDs {
		child, err := b.store.Get(id)
		if err != nil {
			// A purged child counts as a completed failure; the batch
			// itself stays resolvable.
			progress.CompletedCount++
			progress.FailedCount++
			continue
		}
		progress.Children = append(progress.Children, child)
		switch child.Status {
		case StatusCompleted:
			progress.CompletedCount++
			progress.SuccessfulCount++
		case StatusFailed:
			progress.CompletedCount++
			progress.FailedCount++
		case StatusRunning:
			progress.InProgress++
			anyStarted = true
		}
	}

	switch {
	case progress.CompletedCount == progress.Total:
		progress.Status = BatchCompleted
	case anyStarted || progress.CompletedCount > 0:
		progress.Status = BatchRunning
	default:
		progress.Status = BatchPending
	}
	return progress, nil
}
