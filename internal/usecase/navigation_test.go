package usecase

import (
	"testing"

	"github.com/taskbridge/provider-verification/internal/core/domain"
)

func snapshotWithCompleted(completed ...domain.StepNumber) map[domain.StepNumber]domain.StepProgress {
	steps := make(map[domain.StepNumber]domain.StepProgress, len(completed))
	for _, n := range completed {
		steps[n] = domain.StepProgress{ProviderID: "p1", StepNumber: n, Status: domain.StepCompleted}
	}
	return steps
}

func TestFirstIncompleteStep(t *testing.T) {
	tests := []struct {
		name      string
		completed []domain.StepNumber
		want      domain.StepNumber
	}{
		{name: "empty state starts at step one", completed: nil, want: domain.StepIdentityDocument},
		{name: "contiguous prefix", completed: []domain.StepNumber{1, 2, 3}, want: domain.StepCategorySelection},
		{name: "gap stops the scan", completed: []domain.StepNumber{1, 2, 4, 5}, want: domain.StepBusinessInfo},
		{name: "all complete yields sentinel", completed: []domain.StepNumber{1, 2, 3, 4, 5, 6, 7, 8}, want: domain.DoneStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstIncompleteStep(snapshotWithCompleted(tt.completed...)); got != tt.want {
				t.Fatalf("FirstIncompleteStep = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFirstIncompleteStepIgnoresNonCompletedRecords(t *testing.T) {
	steps := snapshotWithCompleted(domain.StepIdentityDocument)
	steps[domain.StepSelfie] = domain.StepProgress{StepNumber: domain.StepSelfie, Status: domain.StepInProgress}
	steps[domain.StepBusinessInfo] = domain.StepProgress{StepNumber: domain.StepBusinessInfo, Status: domain.StepFailed}

	if got := FirstIncompleteStep(steps); got != domain.StepSelfie {
		t.Fatalf("FirstIncompleteStep = %d, want %d", got, domain.StepSelfie)
	}
}

func TestCanNavigate(t *testing.T) {
	steps := snapshotWithCompleted(1, 2, 3)

	// Forward to the first incomplete step is allowed, beyond it is not.
	if !CanNavigate(domain.StepCategorySelection, steps) {
		t.Fatal("navigating to the first incomplete step should be allowed")
	}
	if CanNavigate(domain.StepServices, steps) {
		t.Fatal("skipping past the first incomplete step should be blocked")
	}

	// Any completed step may be revisited.
	for _, n := range []domain.StepNumber{1, 2, 3} {
		if !CanNavigate(n, steps) {
			t.Fatalf("revisiting completed step %d should be allowed", n)
		}
	}
}

func TestCanNavigateSentinelOnlyWhenDone(t *testing.T) {
	if CanNavigate(domain.DoneStep, snapshotWithCompleted(1, 2)) {
		t.Fatal("sentinel step must be unreachable while steps remain")
	}
	if !CanNavigate(domain.DoneStep, snapshotWithCompleted(1, 2, 3, 4, 5, 6, 7, 8)) {
		t.Fatal("sentinel step should be reachable once everything is complete")
	}
	if CanNavigate(0, snapshotWithCompleted()) {
		t.Fatal("step zero is never a navigation target")
	}
	if CanNavigate(domain.DoneStep+1, snapshotWithCompleted()) {
		t.Fatal("steps past the sentinel are never navigation targets")
	}
}
