package usecase

import "github.com/taskbridge/provider-verification/internal/core/domain"

// FirstIncompleteStep returns the lowest-numbered step whose prerequisite
// chain is satisfied but which itself is not completed. Returns the sentinel
// done step when every step is completed. The result depends only on the
// snapshot, never on the clock.
func FirstIncompleteStep(steps map[domain.StepNumber]domain.StepProgress) domain.StepNumber {
	for n := domain.StepIdentityDocument; n <= domain.StepTerms; n++ {
		progress, ok := steps[n]
		if !ok || progress.Status != domain.StepCompleted {
			return n
		}
	}
	return domain.DoneStep
}

// CanNavigate reports whether a user-requested jump to the target step is
// legal: the target must not skip ahead past the first incomplete step, but
// any previously completed step may be revisited for review.
func CanNavigate(target domain.StepNumber, steps map[domain.StepNumber]domain.StepProgress) bool {
	if !target.Valid() && target != domain.DoneStep {
		return false
	}
	if target <= FirstIncompleteStep(steps) {
		return true
	}
	progress, ok := steps[target]
	return ok && progress.Status == domain.StepCompleted
}
