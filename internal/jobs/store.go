package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"scout/internal/pipeline"
)

var (
	// ErrNotFound is returned when a job ID does not exist in the store.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateJob is returned when creating a job whose ID already exists.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrInvalidTransition is returned by Update when a mutator attempts a
	// state change that violates the job lifecycle graph.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Job is the record for one end-to-end research run. The store owns every
// record exclusively; callers only ever see copies.
type Job struct {
	ID        string                 `json:"id"`
	Label     string                 `json:"label"`
	Goal      string                 `json:"goal"`
	State     Status                 `json:"state"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	StageLog  []pipeline.StageResult `json:"stageLog"`

	// Result is set iff State is completed; Error iff failed.
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// ReportPath and PersistError record the artifact persistence outcome.
	// Persistence failure is orthogonal to pipeline success and never moves
	// the job out of completed.
	ReportPath   string `json:"reportPath,omitempty"`
	PersistError string `json:"persistError,omitempty"`
}

// clone returns a deep copy so that no caller holds a mutable alias into
// the store-owned record.
func (j *Job) clone() Job {
	out := *j
	if j.StageLog != nil {
		out.StageLog = make([]pipeline.StageResult, len(j.StageLog))
		copy(out.StageLog, j.StageLog)
	}
	return out
}

// entry wraps a record with its own lock so updates to different jobs
// never block each other; updates to the same job are serialized.
type entry struct {
	mu  sync.Mutex
	job Job
}

// Store is the in-memory job table. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

// NewStore returns a new empty Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

// Create inserts a new record in state pending. Exactly one caller wins
// when the same ID is submitted concurrently; the others get
// ErrDuplicateJob.
func (s *Store) Create(id, label, goal string) (Job, error) {
	now := time.Now().UTC()
	job := Job{
		ID:        id,
		Label:     label,
		Goal:      goal,
		State:     StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return Job{}, ErrDuplicateJob
	}
	s.jobs[id] = &entry{job: job}
	return job, nil
}

// Get returns an immutable snapshot of the record.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Exists reports whether the ID is present without copying the record.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

// Update applies the mutator to the record atomically. The mutator works
// on a copy; the copy replaces the stored record only when the resulting
// state change is legal, so readers never observe a half-applied update
// and the lifecycle graph cannot be violated.
func (s *Store) Update(id string, mutate func(*Job)) (Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job.clone()
	mutate(&next)
	if !canTransition(e.job.State, next.State) {
		return Job{}, ErrInvalidTransition
	}

	next.ID = e.job.ID
	next.CreatedAt = e.job.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	e.job = next
	return next.clone(), nil
}

// List returns snapshots ordered most-recently-created first, optionally
// filtered by state. limit <= 0 means no limit.
func (s *Store) List(state Status, limit int) []Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		j := e.job.clone()
		e.mu.Unlock()
		if state != "" && j.State != state {
			continue
		}
		out = append(out, j)
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DeleteOlderThan evicts terminal jobs last updated before the cutoff and
// returns how many were removed. Non-terminal jobs are never evicted, so a
// poller can only ever see NOT_FOUND for jobs that finished long ago.
func (s *Store) DeleteOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, e := range s.jobs {
		e.mu.Lock()
		evict := e.job.State.Terminal() && e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if evict {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted
}
