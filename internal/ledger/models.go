package ledger

import "time"

// RunStatus is the lifecycle of one camsync invocation.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// BuildOutcome classifies what happened to one camera during index building.
type BuildOutcome string

const (
	OutcomeBuilt   BuildOutcome = "built"
	OutcomeSkipped BuildOutcome = "skipped"
	OutcomeFailed  BuildOutcome = "failed"
	OutcomeMissing BuildOutcome = "missing"
)

// Run is one row of the runs table.
type Run struct {
	ID              string
	Stage           string
	Status          RunStatus
	ReferenceCamera string
	Threshold       int64
	StartTimecode   int64
	Summary         string
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Duration returns how long the run took, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IndexBuild is the recorded outcome for one camera in one run.
type IndexBuild struct {
	RunID       string
	Camera      string
	Outcome     BuildOutcome
	RecordCount int
	IndexPath   string
	Detail      string
	RecordedAt  time.Time
}

// ExtractFailure is a frame the extraction stage could not write.
type ExtractFailure struct {
	RunID             string
	ReferenceTimecode int64
	Camera            string
	Frame             int64
	Error             string
	RecordedAt        time.Time
}
