package pipeline

import (
	"testing"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

func approved(t *testing.T, kind models.ActionKind, confidence float64) *models.Action {
	t.Helper()
	a, err := models.NewAction(kind, "target", "default", nil, 10.0, confidence)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}
	if err := a.Approve(); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	return a
}

func TestDestructiveKindsAlwaysPending(t *testing.T) {
	for _, kind := range []models.ActionKind{models.KindPodCleanup, models.KindPVCCleanup, models.KindNodeOptimization} {
		for _, dryRun := range []bool{true, false} {
			for _, confidence := range []float64{0.7, 0.91, 0.99, 1.0} {
				if got := Classify(approved(t, kind, confidence), dryRun); got != DispositionPendingApproval {
					t.Errorf("%s at %.2f dryRun=%v: expected pending approval, got %s", kind, confidence, dryRun, got)
				}
			}
		}
	}
}

func TestNonDestructiveHighConfidence(t *testing.T) {
	a := approved(t, models.KindRightsizing, 0.95)

	if got := Classify(a, false); got != DispositionAutoExecute {
		t.Errorf("Expected auto execute outside dry run, got %s", got)
	}
	if got := Classify(a, true); got != DispositionPendingApproval {
		t.Errorf("Expected pending approval in dry run, got %s", got)
	}
}

func TestAutoExecuteThresholdIsStrict(t *testing.T) {
	if got := Classify(approved(t, models.KindHPAOptimization, 0.90), false); got != DispositionPendingApproval {
		t.Errorf("Expected confidence 0.90 to require approval, got %s", got)
	}
	if got := Classify(approved(t, models.KindHPAOptimization, 0.75), false); got != DispositionPendingApproval {
		t.Errorf("Expected confidence 0.75 to require approval, got %s", got)
	}

	stricter := Policy{AutoExecuteConfidence: 0.97}
	if got := stricter.Classify(approved(t, models.KindRightsizing, 0.95), false); got != DispositionPendingApproval {
		t.Errorf("Expected stricter threshold to require approval, got %s", got)
	}
}

func TestPolicyCannotLowerAutoExecuteThreshold(t *testing.T) {
	for _, threshold := range []float64{0.2, 0.7, 0.89} {
		loose := Policy{AutoExecuteConfidence: threshold}
		if got := loose.Classify(approved(t, models.KindHPAOptimization, 0.75), false); got != DispositionPendingApproval {
			t.Errorf("threshold %.2f: expected confidence 0.75 to require approval, got %s", threshold, got)
		}
		if got := loose.Classify(approved(t, models.KindRightsizing, 0.90), false); got != DispositionPendingApproval {
			t.Errorf("threshold %.2f: expected confidence 0.90 to require approval, got %s", threshold, got)
		}
	}
}

func TestSplitIsDisjointAndOrdered(t *testing.T) {
	rejected, _ := models.NewAction(models.KindRightsizing, "r", "default", nil, 1, 0.99)
	_ = rejected.Reject("no")
	stillPending, _ := models.NewAction(models.KindRightsizing, "p", "default", nil, 1, 0.99)

	actions := []*models.Action{
		approved(t, models.KindRightsizing, 0.95),
		approved(t, models.KindPodCleanup, 0.99),
		rejected,
		approved(t, models.KindHPAOptimization, 0.75),
		stillPending,
		approved(t, models.KindRightsizing, 0.99),
	}

	pending, auto := Split(actions, false)

	if len(pending) != 2 || pending[0] != actions[1] || pending[1] != actions[3] {
		t.Errorf("Unexpected pending set: %v", pending)
	}
	if len(auto) != 2 || auto[0] != actions[0] || auto[1] != actions[5] {
		t.Errorf("Unexpected auto set: %v", auto)
	}

	seen := map[*models.Action]bool{}
	for _, a := range append(append([]*models.Action{}, pending...), auto...) {
		if seen[a] {
			t.Errorf("Action %s appears in both sets", a.ID)
		}
		seen[a] = true
	}
	if seen[rejected] || seen[stillPending] {
		t.Error("Non-approved actions must not be dispositioned")
	}
}
