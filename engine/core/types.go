package core

// -----------------------------------------------------------------------------
// Job Status
// -----------------------------------------------------------------------------

// JobStatus tracks the lifecycle of a single job inside a run. Transitions are
// monotonic: once a job reaches a terminal status it never changes again.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobSkipped, JobCancelled:
		return true
	}
	return false
}

// Satisfied reports whether a dependency in this status unblocks its
// dependents. Skipped intentionally counts as satisfied: downstream jobs
// still become ready and typically self-skip through their own conditions
// instead of cascading as failures.
func (s JobStatus) Satisfied() bool {
	return s == JobCompleted || s == JobSkipped
}

// -----------------------------------------------------------------------------
// Run Status
// -----------------------------------------------------------------------------

// RunStatus tracks the lifecycle of a whole workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}
