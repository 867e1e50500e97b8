package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scout/internal/config"
	"scout/internal/metrics"
	"scout/internal/pipeline"
	"scout/internal/report"
	"scout/internal/store"
)

var (
	// ErrInvalidRequest is returned when a submission is missing required
	// fields or carries an unusable job ID.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAlreadyTerminal is returned when cancelling a job that already
	// reached a terminal state.
	ErrAlreadyTerminal = errors.New("job is already terminal")
)

const maxJobIDLen = 128

// ArtifactIndex is the optional durable index of persisted reports.
// Satisfied by *store.Store; a nil index means the service runs file-only.
type ArtifactIndex interface {
	UpsertArtifact(ctx context.Context, p store.ArtifactParams) error
	GetArtifactByLabel(ctx context.Context, label string) (store.Artifact, error)
	ListArtifacts(ctx context.Context, limit int32) ([]store.Artifact, error)
	DeleteArtifactsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubmitRequest carries one research submission. JobID is optional; when
// empty a UUID is generated.
type SubmitRequest struct {
	JobID string
	Label string
	Goal  string
}

// Scheduler accepts research submissions, launches each job's pipeline run
// on its own goroutine behind a concurrency-limiting semaphore, and keeps
// the job store updated as execution progresses. All mutation of job
// records goes through the store's atomic Update.
type Scheduler struct {
	cfg    *config.Config
	store  *Store
	runner *pipeline.Runner
	writer *report.Writer
	index  ArtifactIndex // optional, may be nil
	logger *slog.Logger

	rootCtx context.Context
	sem     chan struct{}
}

// NewScheduler constructs a Scheduler. ctx bounds all background pipeline
// execution; cancelling it stops in-flight jobs at their next stage
// boundary. The artifact index may be nil when no database is configured.
func NewScheduler(ctx context.Context, cfg *config.Config, st *Store, runner *pipeline.Runner, writer *report.Writer, index ArtifactIndex, logger *slog.Logger) *Scheduler {
	maxJobs := cfg.Scheduler.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		store:   st,
		runner:  runner,
		writer:  writer,
		index:   index,
		logger:  logger,
		rootCtx: ctx,
		sem:     make(chan struct{}, maxJobs),
	}
}

// Submit validates the request, creates the pending job record, and
// schedules the pipeline run. It returns as soon as the record exists;
// no stage has executed yet.
func (s *Scheduler) Submit(req SubmitRequest) (Job, error) {
	label := report.NormalizeLabel(req.Label)
	goal := strings.TrimSpace(req.Goal)
	id := strings.TrimSpace(req.JobID)

	if label == "" {
		return Job{}, fmt.Errorf("%w: crewName is required", ErrInvalidRequest)
	}
	if goal == "" {
		return Job{}, fmt.Errorf("%w: goal is required", ErrInvalidRequest)
	}
	if len(id) > maxJobIDLen {
		return Job{}, fmt.Errorf("%w: jobId exceeds %d characters", ErrInvalidRequest, maxJobIDLen)
	}
	if id == "" {
		id = uuid.New().String()
	}

	job, err := s.store.Create(id, label, goal)
	if err != nil {
		return Job{}, err
	}

	s.logger.Info("job submitted", "job_id", id, "label", label)
	go s.execute(id)

	return job, nil
}

// Status returns an immutable snapshot of the job record.
func (s *Scheduler) Status(id string) (Job, error) {
	return s.store.Get(id)
}

// IndexedArtifacts returns rows from the artifact index, or nil when no
// index is configured.
func (s *Scheduler) IndexedArtifacts(ctx context.Context, limit int32) ([]store.Artifact, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.ListArtifacts(ctx, limit)
}

// IndexedArtifact returns the index row for a label. The second return is
// false when no index is configured or the label is not indexed.
func (s *Scheduler) IndexedArtifact(ctx context.Context, label string) (store.Artifact, bool) {
	if s.index == nil {
		return store.Artifact{}, false
	}
	a, err := s.index.GetArtifactByLabel(ctx, label)
	if err != nil {
		return store.Artifact{}, false
	}
	return a, true
}

// List returns job snapshots, newest first.
func (s *Scheduler) List(state Status, limit int) []Job {
	return s.store.List(state, limit)
}

// Cancel transitions a pending job to cancelled. Terminal jobs report
// ErrAlreadyTerminal; a running job cannot be cancelled and reports
// ErrInvalidTransition (its in-flight stage is allowed to finish). The
// decision is made inside the store's atomic update, so a job that turns
// terminal concurrently is still reported as terminal, never as running.
func (s *Scheduler) Cancel(id string) (Job, error) {
	var already bool
	updated, err := s.store.Update(id, func(j *Job) {
		if j.State == StatusCancelled {
			already = true
			return
		}
		j.State = StatusCancelled
	})
	if err == nil {
		if already {
			return updated, ErrAlreadyTerminal
		}
		s.logger.Info("job cancelled", "job_id", id)
		metrics.RecordJobFinished(string(StatusCancelled))
		return updated, nil
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return Job{}, err
	}

	// The update was rejected: the job is either running or reached
	// completed/failed first. Classify from a fresh snapshot.
	job, getErr := s.store.Get(id)
	if getErr != nil {
		return Job{}, getErr
	}
	if job.State.Terminal() {
		return job, ErrAlreadyTerminal
	}
	return Job{}, ErrInvalidTransition
}

// execute runs one job's pipeline to completion. It owns the full
// pending -> running -> terminal walk for the record.
func (s *Scheduler) execute(id string) {
	select {
	case s.sem <- struct{}{}:
	case <-s.rootCtx.Done():
		return
	}
	defer func() { <-s.sem }()

	job, err := s.store.Update(id, func(j *Job) {
		j.State = StatusRunning
	})
	if err != nil {
		// Cancelled while queued, or evicted; nothing to run.
		return
	}

	hooks := &progressHooks{store: s.store, jobID: id, logger: s.logger}
	results, runErr := s.runner.Run(s.rootCtx, job.Goal, hooks)

	if runErr != nil {
		_, _ = s.store.Update(id, func(j *Job) {
			j.State = StatusFailed
			j.Error = runErr.Error()
		})
		metrics.RecordJobFinished(string(StatusFailed))
		s.logger.Error("job failed", "job_id", id, "error", runErr)
		return
	}

	content := report.Build(job.Label, job.Goal, results)
	if _, err := s.store.Update(id, func(j *Job) {
		j.State = StatusCompleted
		j.Result = content
	}); err != nil {
		s.logger.Error("job completion update rejected", "job_id", id, "error", err)
		return
	}
	metrics.RecordJobFinished(string(StatusCompleted))
	s.logger.Info("job completed", "job_id", id, "stages", len(results))

	s.persist(id, job, content, results)
}

// persist writes the compiled report and records the outcome on the job.
// Persistence failure never moves the job out of completed; the result
// stays readable from the store.
func (s *Scheduler) persist(id string, job Job, content string, results []pipeline.StageResult) {
	path, err := s.writer.Persist(job.Label, content, s.cfg.Reports.Overwrite)
	if err != nil {
		_, _ = s.store.Update(id, func(j *Job) {
			j.PersistError = err.Error()
		})
		s.logger.Warn("report persistence failed", "job_id", id, "label", job.Label, "error", err)
		return
	}

	_, _ = s.store.Update(id, func(j *Job) {
		j.ReportPath = path
	})

	if s.index != nil {
		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		err := s.index.UpsertArtifact(s.rootCtx, store.ArtifactParams{
			JobID: id,
			Label: job.Label,
			Path:  path,
			Metadata: map[string]any{
				"goal":            job.Goal,
				"stages":          len(results),
				"stagesSucceeded": succeeded,
			},
		})
		if err != nil {
			s.logger.Warn("artifact index update failed", "job_id", id, "label", job.Label, "error", err)
		}
	}
}

// progressHooks appends each stage outcome to the job's stage log as soon
// as it is recorded, so pollers see the log grow in pipeline order.
type progressHooks struct {
	store  *Store
	jobID  string
	logger *slog.Logger
}

func (h *progressHooks) BeforeStage(index int, spec pipeline.StageSpec) {
	h.logger.Debug("stage starting", "job_id", h.jobID, "stage", spec.Name, "index", index)
}

func (h *progressHooks) AfterStage(index int, result pipeline.StageResult) {
	_, err := h.store.Update(h.jobID, func(j *Job) {
		j.StageLog = append(j.StageLog, result)
	})
	if err != nil {
		h.logger.Warn("stage log update rejected", "job_id", h.jobID, "stage", result.Name, "error", err)
	}

	metrics.RecordStage(result.Name, result.Success, result.Duration.Milliseconds())
	if result.Success {
		h.logger.Info("stage completed", "job_id", h.jobID, "stage", result.Name, "duration_ms", result.Duration.Milliseconds())
	} else {
		h.logger.Warn("stage failed", "job_id", h.jobID, "stage", result.Name, "reason", result.FailureReason)
	}
}
