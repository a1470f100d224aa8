package types

import "time"

// StepStatus tracks the lifecycle of a single chain step. Transitions are
// strictly Pending → InProgress → {Completed | Failed}, each at most once.
type StepStatus int

const (
	// StepPending indicates the step has not started yet
	StepPending StepStatus = iota
	// StepInProgress indicates a conversion process is running for the step
	StepInProgress
	// StepCompleted indicates the step's process finished successfully
	StepCompleted
	// StepFailed indicates the step's process failed
	StepFailed
)

// String returns a string representation of the step status
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "PENDING"
	case StepInProgress:
		return "IN_PROGRESS"
	case StepCompleted:
		return "COMPLETED"
	case StepFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ConversionProcess is one in-flight execution of a single recipe on a
// single converter. It is owned exclusively by the engine's scheduler queue
// until completion and afterwards retained only in the bounded history.
type ConversionProcess struct {
	ID       string `json:"process_id"`
	RecipeID string `json:"recipe_id"`
	// SourceID is the converter node running the process.
	SourceID string `json:"source_id"`
	Active   bool   `json:"active"`
	Paused   bool   `json:"paused"`
	// StartTime and EndTime bound the processing window. EndTime is the
	// planned completion instant; pausing shifts both forward on resume.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	// PausedAt records when the process was paused, zero otherwise.
	PausedAt time.Time `json:"paused_at,omitzero"`
	// Progress is in [0,1] and non-decreasing while active and not paused.
	Progress float64 `json:"progress"`
	// AppliedEfficiency is captured at start time and clamped to [0,2].
	AppliedEfficiency float64 `json:"applied_efficiency"`
}

// ChainStep is one element of a chain's recipe sequence together with its
// runtime status record.
type ChainStep struct {
	RecipeID    string     `json:"recipe_id"`
	Status      StepStatus `json:"status"`
	StartTime   time.Time  `json:"start_time,omitzero"`
	EndTime     time.Time  `json:"end_time,omitzero"`
	ProcessID   string     `json:"process_id,omitempty"`
	ConverterID string     `json:"converter_id,omitempty"`
}

// ChainExecution tracks one run of a chain through its ordered steps.
// Executions are keyed by a generated ExecutionID so the same chain
// definition can run several times concurrently.
type ChainExecution struct {
	ChainID      string      `json:"chain_id"`
	ExecutionID  string      `json:"execution_id"`
	Active       bool        `json:"active"`
	Paused       bool        `json:"paused"`
	Completed    bool        `json:"completed"`
	Failed       bool        `json:"failed"`
	ErrorMessage string      `json:"error_message,omitempty"`
	StartTime    time.Time   `json:"start_time"`
	CurrentStep  int         `json:"current_step"`
	RecipeIDs    []string    `json:"recipe_ids"`
	Steps        []ChainStep `json:"steps"`
}

// Clone returns an independent copy of the execution record.
func (e ChainExecution) Clone() ChainExecution {
	out := e
	if e.RecipeIDs != nil {
		out.RecipeIDs = make([]string, len(e.RecipeIDs))
		copy(out.RecipeIDs, e.RecipeIDs)
	}
	if e.Steps != nil {
		out.Steps = make([]ChainStep, len(e.Steps))
		copy(out.Steps, e.Steps)
	}
	return out
}

// Terminal reports whether the execution has finished, successfully or not.
func (e ChainExecution) Terminal() bool {
	return e.Completed || e.Failed
}
