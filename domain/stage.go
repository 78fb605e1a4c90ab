package domain

type Stage string

const (
	StageCreated                  Stage = "created"
	StageLinkResolved             Stage = "link_resolved"
	StageConfigured               Stage = "configured"
	StageGeneratingScript         Stage = "generating_script"
	StageScriptReady              Stage = "script_ready"
	StageGeneratingReferenceImage Stage = "generating_reference_image"
	StageReferenceReady           Stage = "reference_ready"
	StageGeneratingOutput         Stage = "generating_output"
	StageSuccess                  Stage = "success"
	StagePartialSuccess           Stage = "partial_success"
	StageFailed                   Stage = "failed"
)

func (s Stage) Generating() bool {
	return s == StageGeneratingScript || s == StageGeneratingReferenceImage || s == StageGeneratingOutput
}

func (s Stage) Terminal() bool {
	return s == StageSuccess || s == StagePartialSuccess || s == StageFailed
}

// Step names the advanceable pipeline steps as callers see them.
type Step string

const (
	StepLinkResolution Step = "link_resolution"
	StepConfiguration  Step = "configuration"
	StepScript         Step = "script"
	StepReferenceImage Step = "reference_image"
	StepOutput         Step = "output"
)

func ParseStep(name string) (Step, bool) {
	switch Step(name) {
	case StepLinkResolution, StepConfiguration, StepScript, StepReferenceImage, StepOutput:
		return Step(name), true
	}
	return "", false
}

var allowedTransitions = map[Stage]map[Stage]bool{
	StageCreated: {
		StageLinkResolved: true,
	},
	StageLinkResolved: {
		StageConfigured: true,
	},
	StageConfigured: {
		StageConfigured:       true, // reconfigure before first generation
		StageGeneratingScript: true,
	},
	StageGeneratingScript: {
		StageScriptReady: true,
		StageConfigured:  true, // submit failed, charge reversed
		StageFailed:      true,
	},
	StageScriptReady: {
		StageGeneratingScript:         true, // rewrite
		StageGeneratingReferenceImage: true,
	},
	StageGeneratingReferenceImage: {
		StageReferenceReady: true,
		StageScriptReady:    true, // submit failed, charge reversed
		StageFailed:         true,
	},
	StageReferenceReady: {
		StageGeneratingReferenceImage: true, // regenerate
		StageGeneratingOutput:         true,
	},
	StageGeneratingOutput: {
		StageSuccess:        true,
		StagePartialSuccess: true,
		StageFailed:         true,
	},
	StageFailed: {
		StageGeneratingScript:         true, // explicit retry of the failed step
		StageGeneratingReferenceImage: true,
		StageGeneratingOutput:         true,
	},
	StageSuccess:        {},
	StagePartialSuccess: {
		StageGeneratingOutput: true, // regenerate to recover failed variants
	},
}

func CanTransition(from, to Stage) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

type stepSpec struct {
	generating Stage
	ready      Stage
	provider   ProviderKind
	reason     string
}

var stepSpecs = map[Step]stepSpec{
	StepScript: {
		generating: StageGeneratingScript,
		ready:      StageScriptReady,
		provider:   ScriptProviderKind,
		reason:     ReasonScriptGeneration,
	},
	StepReferenceImage: {
		generating: StageGeneratingReferenceImage,
		ready:      StageReferenceReady,
		provider:   ImageGridProviderKind,
		reason:     ReasonReferenceImage,
	},
	StepOutput: {
		generating: StageGeneratingOutput,
		provider:   VideoProviderKind,
		reason:     ReasonOutputVariant,
	},
}

func (s Step) GeneratingStage() Stage {
	return stepSpecs[s].generating
}

// ReadyStage is the stage a completed step settles into. The output step has
// none: it terminates through variant aggregation instead.
func (s Step) ReadyStage() Stage {
	return stepSpecs[s].ready
}

func (s Step) Provider() ProviderKind {
	return stepSpecs[s].provider
}

func (s Step) ReasonCode() string {
	return stepSpecs[s].reason
}

// GeneratingStep maps a generating stage back to its step.
func GeneratingStep(stage Stage) (Step, bool) {
	switch stage {
	case StageGeneratingScript:
		return StepScript, true
	case StageGeneratingReferenceImage:
		return StepReferenceImage, true
	case StageGeneratingOutput:
		return StepOutput, true
	}
	return "", false
}

// RevertStage is the stage a failed dispatch rolls back to, leaving the job
// exactly where it was before the generating transition.
func (s Step) RevertStage(attempt int) Stage {
	switch s {
	case StepScript:
		if attempt > 1 {
			return StageScriptReady
		}
		return StageConfigured
	case StepReferenceImage:
		if attempt > 1 {
			return StageReferenceReady
		}
		return StageScriptReady
	case StepOutput:
		return StageReferenceReady
	}
	return StageCreated
}

// CanStartStep reports whether a job may enter a step's generating state.
// It checks the non-null inputs the step needs, consults the transition
// table for the stage ordering, and requires an explicit retry to re-run
// a step that already finished or failed.
func CanStartStep(job *Job, step Step, retry bool) error {
	switch step {
	case StepScript:
		if job.Config == nil || job.Product == nil {
			return ErrPreconditionNotMet
		}
	case StepReferenceImage:
		if job.LatestOutput(StepScript) == nil {
			return ErrPreconditionNotMet
		}
	case StepOutput:
		if job.LatestOutput(StepScript) == nil || job.LatestOutput(StepReferenceImage) == nil {
			return ErrPreconditionNotMet
		}
	default:
		return ErrPreconditionNotMet
	}

	if !CanTransition(job.Stage, step.GeneratingStage()) {
		return ErrPreconditionNotMet
	}

	switch job.Stage {
	case StageFailed:
		if !retry || job.FailedStep != step {
			return ErrPreconditionNotMet
		}
	case StagePartialSuccess:
		if !retry {
			return ErrPreconditionNotMet
		}
	case step.ReadyStage():
		if !retry {
			return ErrPreconditionNotMet
		}
	}
	return nil
}
