package model

// Stage is a step of one tool invocation.
type Stage string

const (
	StageIdle             Stage = "IDLE"
	StageResolveAction    Stage = "RESOLVE_ACTION"
	StageConvertArguments Stage = "CONVERT_ARGUMENTS"
	StageExecute          Stage = "EXECUTE"
	StagePersistResults   Stage = "PERSIST_RESULTS"
	StageDone             Stage = "DONE"
	StageFailed           Stage = "FAILED"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsTerminal returns true if the invocation has finished.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageDone, StageFailed:
		return true
	}
	return false
}

// ValidStageTransitions defines the allowed stage transitions. Any
// non-terminal stage may also fail.
var ValidStageTransitions = map[Stage][]Stage{
	StageIdle:             {StageResolveAction},
	StageResolveAction:    {StageConvertArguments, StageFailed},
	StageConvertArguments: {StageExecute, StageFailed},
	StageExecute:          {StagePersistResults, StageFailed},
	StagePersistResults:   {StageDone, StageFailed},
}

// CanTransitionTo returns true if moving from the current stage to next is valid.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range ValidStageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Kind is the error kind raised when the stage fails.
func (s Stage) Kind() ErrorKind {
	switch s {
	case StageResolveAction:
		return ErrActionResolution
	case StageConvertArguments:
		return ErrArgumentConversion
	case StageExecute:
		return ErrExecution
	case StagePersistResults:
		return ErrResultPersist
	}
	return ""
}
