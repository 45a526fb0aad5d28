package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/subhub/youtube-subtitle-hub/pkg/log"
)

// RecordStore persists job records so a restart does not forget history.
type RecordStore interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Store is the authoritative, thread-safe mapping from job id to record.
// All reads return clones so callers never observe in-place mutation.
type Store struct {
	maxActive int
	records   RecordStore

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore(maxActive int, records RecordStore) *Store {
	if maxActive <= 0 {
		maxActive = 100
	}
	s := &Store{
		maxActive: maxActive,
		records:   records,
		jobs:      make(map[string]*Job),
	}
	s.hydrateFromRecords(context.Background())
	return s
}

// Create registers a fresh pending job and returns its snapshot.
func (s *Store) Create(req CreateRequest) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		URL:       req.URL,
		Quality:   req.Quality,
		Status:    StatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if s.activeCountLocked() >= s.maxActive {
		s.mu.Unlock()
		return nil, ErrCapacity
	}
	s.jobs[job.ID] = job
	pruned := s.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persistJob(snapshot)
	s.deleteRecords(pruned)
	return snapshot, nil
}

// Get returns a snapshot of the job or ErrNotFound.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// List returns snapshots of every job, newest first.
func (s *Store) List() []*Job {
	s.mu.RLock()
	ret := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		ret = append(ret, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

// Update atomically merges the given fields into the stored record and
// refreshes updated_at. Terminal records reject every further mutation.
func (s *Store) Update(id string, update Update) (*Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.ProgressPercent != nil {
		// percent is monotone non-decreasing while running
		if next := clampPercent(*update.ProgressPercent); next > job.ProgressPercent {
			job.ProgressPercent = next
		}
	}
	if update.Message != nil {
		job.Message = *update.Message
	}
	if update.Result != nil {
		job.Result = cloneResult(update.Result)
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	if job.Status == StatusCompleted {
		job.ProgressPercent = 100
	}
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persistJob(snapshot)
	return snapshot, nil
}

// Delete removes the job record outright. Used by the retention sweep.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.deleteRecords([]string{id})
	return nil
}

// SweepTerminalBefore removes terminal jobs last updated before the cutoff
// and returns their snapshots so the caller can unlink artifacts.
func (s *Store) SweepTerminalBefore(cutoff time.Time) []*Job {
	s.mu.Lock()
	swept := make([]*Job, 0)
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			swept = append(swept, cloneJob(job))
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(swept))
	for _, job := range swept {
		ids = append(ids, job.ID)
	}
	s.deleteRecords(ids)
	return swept
}

func (s *Store) activeCountLocked() int {
	count := 0
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// pruneTerminalJobsLocked evicts the oldest terminal jobs once the store
// grows past maxActive total records.
func (s *Store) pruneTerminalJobsLocked() []string {
	if len(s.jobs) <= s.maxActive {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.Status.IsTerminal() {
			terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
		}
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := len(s.jobs) - s.maxActive
	if toRemove > len(terminal) {
		toRemove = len(terminal)
	}

	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		delete(s.jobs, terminal[i].id)
		pruned = append(pruned, terminal[i].id)
	}
	return pruned
}

// hydrateFromRecords reloads persisted jobs. Records still marked
// pending/running were interrupted by a restart and come back failed since
// their work is gone.
func (s *Store) hydrateFromRecords(ctx context.Context) {
	if s.records == nil {
		return
	}
	loaded, err := s.records.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from record store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Job, 0)
	s.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if !job.Status.IsTerminal() {
			job.Status = StatusFailed
			job.Error = "interrupted by server restart"
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		s.jobs[job.ID] = job
	}
	s.mu.Unlock()

	for _, job := range toPersist {
		s.persistJob(job)
	}
}

func (s *Store) persistJob(job *Job) {
	if s.records == nil || job == nil {
		return
	}
	if err := s.records.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (s *Store) deleteRecords(ids []string) {
	if s.records == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := s.records.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete job %s from record store: %v", id, err)
		}
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Result = cloneResult(job.Result)
	return &tmp
}

func cloneResult(result *Result) *Result {
	if result == nil {
		return nil
	}
	tmp := *result
	return &tmp
}
