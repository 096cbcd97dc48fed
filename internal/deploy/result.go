package deploy

// Stage identifies which step of the apply pipeline a failure occurred in.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageState  Stage = "state"
	StagePull   Stage = "pull"
	StageBuild  Stage = "build"
	StageDeploy Stage = "deploy"
)

// Outcome summarizes one target's evaluation within a run.
type Outcome string

const (
	UpToDate Outcome = "up_to_date"
	Deployed Outcome = "deployed"
	Failed   Outcome = "failed"
)

// TargetResult is the per-target summary of an orchestration run.
type TargetResult struct {
	Target   string  `json:"target"`
	Outcome  Outcome `json:"outcome"`
	Revision string  `json:"revision,omitempty"` // new revision when deployed
	Stage    Stage   `json:"stage,omitempty"`    // failed stage
	Err      error   `json:"-"`
}

// RunResult is the overall outcome of one orchestration run.
type RunResult struct {
	Skipped bool           `json:"skipped"` // true when the run lock was held
	Targets []TargetResult `json:"targets"`
}

// FailedCount returns how many targets failed in this run.
func (r RunResult) FailedCount() int {
	n := 0
	for _, t := range r.Targets {
		if t.Outcome == Failed {
			n++
		}
	}
	return n
}

// Process exit codes so external schedulers can distinguish "nothing ran",
// "all healthy", and "partial failure".
const (
	ExitCompleted      = 0
	ExitSkipped        = 2
	ExitTargetFailures = 3
)

// ExitCode maps the run outcome to the orchestrator's process exit code.
func (r RunResult) ExitCode() int {
	if r.Skipped {
		return ExitSkipped
	}
	if r.FailedCount() > 0 {
		return ExitTargetFailures
	}
	return ExitCompleted
}
