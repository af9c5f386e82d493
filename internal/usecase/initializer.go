package usecase

import (
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

// Initializer is the boot-time consistency checker. It runs once after the
// flow state finishes hydrating and restores the invariant that the current
// step pointer never claims more progress than the step data supports.
type Initializer struct {
	flow   *FlowState
	logger *zap.Logger
}

// NewInitializer constructs the consistency checker for a flow.
func NewInitializer(flow *FlowState, logger *zap.Logger) *Initializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initializer{flow: flow, logger: logger}
}

// Run scrubs structurally invalid completions and reconciles the current step
// pointer against the resolver's computed correct step. The pointer is set on
// first run, clamped down when it is provably ahead of the data, and left
// untouched when the user is at or behind the correct step; a user reviewing
// an earlier completed step must never be forced forward.
func (i *Initializer) Run() domain.StepNumber {
	demoted := i.flow.ValidateAndResetState()

	correct := FirstIncompleteStep(i.flow.StepsSnapshot())
	current := i.flow.CurrentStep()

	switch {
	case current == 0:
		i.flow.SetCurrentStep(correct)
	case current > correct:
		i.logger.Info("clamped current step to match step data",
			zap.String("provider_id", i.flow.ProviderID()),
			zap.Int("was", int(current)),
			zap.Int("now", int(correct)),
			zap.Int("steps_demoted", len(demoted)),
		)
		i.flow.SetCurrentStep(correct)
	}

	return i.flow.CurrentStep()
}
