package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Executor runs the body of one stage. It receives the research goal and a
// read-only snapshot of the accumulated context and returns the text the
// stage produced. Executors must tolerate missing context entries: a
// dependency that failed earlier simply has no key.
type Executor func(ctx context.Context, goal string, pc Context) (string, error)

// Context is the accumulating mapping from stage name to produced text.
// It exists only for the duration of one pipeline run; stages that failed
// contribute no key.
type Context map[string]string

// Lookup returns the output of a previously completed stage, if any.
func (c Context) Lookup(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}

// snapshot returns a copy safe to hand to an executor while the runner
// keeps mutating the original between stages.
func (c Context) snapshot() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// StageSpec describes one configured stage, resolved from the crew
// registry at startup.
type StageSpec struct {
	Name      string
	Agent     string
	DependsOn []string
	HardStop  bool
	TimeoutMs int
}

// Stage pairs a spec with the executor bound to it.
type Stage struct {
	Spec StageSpec
	Run  Executor
}

// StageResult is the immutable record of one stage attempt. It is appended
// to the owning job's stage log in pipeline order.
type StageResult struct {
	Name          string        `json:"name"`
	Agent         string        `json:"agent,omitempty"`
	Success       bool          `json:"success"`
	Output        string        `json:"output,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Hooks receives callbacks around stage execution so callers can persist
// progress (e.g. append to a job record) while the run is still going.
// Both methods may be called from the run's goroutine only.
type Hooks interface {
	BeforeStage(index int, spec StageSpec)
	AfterStage(index int, result StageResult)
}

// NopHooks is used when the caller does not care about progress.
type NopHooks struct{}

func (NopHooks) BeforeStage(int, StageSpec)  {}
func (NopHooks) AfterStage(int, StageResult) {}

// ErrNoStages is returned by NewRunner when the resolved registry is empty.
var ErrNoStages = errors.New("pipeline has no stages")

// HardStopError marks a run aborted by a required-hard stage. The job is
// transitioned to FAILED with this error; remaining stages never ran.
type HardStopError struct {
	Stage  string
	Reason string
}

func (e *HardStopError) Error() string {
	return fmt.Sprintf("required stage %q failed: %s", e.Stage, e.Reason)
}

// Runner executes a fixed, ordered list of stages. Stages run strictly in
// order; stage i+1 never starts before stage i's outcome is recorded.
type Runner struct {
	stages       []Stage
	stageTimeout time.Duration
}

// NewRunner builds a Runner over the resolved stage list. stageTimeout is
// the default per-stage bound; a spec's TimeoutMs overrides it.
func NewRunner(stages []Stage, stageTimeout time.Duration) (*Runner, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	return &Runner{stages: stages, stageTimeout: stageTimeout}, nil
}

// StageCount reports how many stages one run will attempt at most.
func (r *Runner) StageCount() int { return len(r.stages) }

// Run executes all stages for one goal and returns the order-preserved
// stage log. A stage failure is captured as data (StageResult.Success=false)
// and execution continues, unless the stage is marked HardStop or the run
// context is cancelled at a stage boundary. The returned error is non-nil
// only for those two fatal cases; the partial log is still returned.
func (r *Runner) Run(ctx context.Context, goal string, hooks Hooks) ([]StageResult, error) {
	if hooks == nil {
		hooks = NopHooks{}
	}

	results := make([]StageResult, 0, len(r.stages))
	pc := make(Context, len(r.stages))

	for i, stage := range r.stages {
		// Cancellation is cooperative and honored only between stages.
		if err := ctx.Err(); err != nil {
			return results, err
		}

		hooks.BeforeStage(i, stage.Spec)

		res := r.runStage(ctx, stage, goal, pc)
		results = append(results, res)
		if res.Success {
			pc[stage.Spec.Name] = res.Output
		}

		hooks.AfterStage(i, res)

		if !res.Success && stage.Spec.HardStop {
			return results, &HardStopError{Stage: stage.Spec.Name, Reason: res.FailureReason}
		}
	}

	return results, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, goal string, pc Context) (res StageResult) {
	res = StageResult{Name: stage.Spec.Name, Agent: stage.Spec.Agent}

	timeout := r.stageTimeout
	if stage.Spec.TimeoutMs > 0 {
		timeout = time.Duration(stage.Spec.TimeoutMs) * time.Millisecond
	}

	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		// A panicking executor is recorded as a failed stage; it must not
		// take down the pipeline or the process.
		if rec := recover(); rec != nil {
			res.Success = false
			res.Output = ""
			res.FailureReason = fmt.Sprintf("stage panicked: %v", rec)
		}
	}()

	if stage.Run == nil {
		res.FailureReason = "no executor bound to stage"
		return res
	}

	out, err := stage.Run(stageCtx, goal, pc.snapshot())
	if err != nil {
		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.FailureReason = fmt.Sprintf("timed out after %s", timeout)
		} else {
			res.FailureReason = err.Error()
		}
		return res
	}

	res.Success = true
	res.Output = out
	return res
}
