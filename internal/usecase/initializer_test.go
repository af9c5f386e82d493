package usecase

import (
	"testing"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

func TestInitializerSetsPointerOnFirstRun(t *testing.T) {
	flow := newTestFlow("p1", newTestClock())
	completeSteps(flow, domain.StepIdentityDocument, domain.StepSelfie)

	got := NewInitializer(flow, nil).Run()
	if got != domain.StepBusinessInfo {
		t.Fatalf("initial current step = %d, want %d", got, domain.StepBusinessInfo)
	}
	if flow.CurrentStep() != domain.StepBusinessInfo {
		t.Fatalf("pointer not persisted, got %d", flow.CurrentStep())
	}
}

func TestInitializerClampsPointerAheadOfData(t *testing.T) {
	flow := newTestFlow("p1", newTestClock())
	completeSteps(flow, domain.StepIdentityDocument)

	// A stale record claims the user is on step 5 although only step 1 holds up.
	flow.SetCurrentStep(domain.StepServices)

	if got := NewInitializer(flow, nil).Run(); got != domain.StepSelfie {
		t.Fatalf("current step = %d, want clamp down to %d", got, domain.StepSelfie)
	}
}

func TestInitializerClampsAfterDemotion(t *testing.T) {
	flow := newTestFlow("p1", newTestClock())
	completeSteps(flow, domain.StepIdentityDocument, domain.StepSelfie)
	// Step 3 was marked completed without any data to back it up.
	if _, err := flow.CompleteStep(domain.StepBusinessInfo, nil); err != nil {
		t.Fatalf("complete step: %v", err)
	}
	flow.SetCurrentStep(domain.StepCategorySelection)

	if got := NewInitializer(flow, nil).Run(); got != domain.StepBusinessInfo {
		t.Fatalf("current step = %d, want %d after demotion", got, domain.StepBusinessInfo)
	}
	if progress := flow.StepProgressFor(domain.StepBusinessInfo); progress.Status != domain.StepNotStarted {
		t.Fatalf("unbacked completion survived, status = %q", progress.Status)
	}
}

func TestInitializerNeverForcesForward(t *testing.T) {
	flow := newTestFlow("p1", newTestClock())
	completeSteps(flow, domain.StepIdentityDocument, domain.StepSelfie, domain.StepBusinessInfo)

	// The user navigated back to review step 1.
	flow.SetCurrentStep(domain.StepIdentityDocument)

	if got := NewInitializer(flow, nil).Run(); got != domain.StepIdentityDocument {
		t.Fatalf("current step = %d, reviewing user must not be moved forward", got)
	}
}
