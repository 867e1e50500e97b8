package jobs

// Status represents the lifecycle state of a research job. Transitions are
// monotonic: pending -> running -> completed|failed, plus cancelled which is
// reachable from pending only.
//
// Centralizing these here avoids scattering string literals like "pending"
// or "completed" across packages.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the acyclic state graph. Same-state "transitions"
// are allowed so that a mutator can update other fields without moving the
// job (e.g. appending a stage result while running).
func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// ParseStatus validates a user-supplied status filter value.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s), true
	}
	return "", false
}
