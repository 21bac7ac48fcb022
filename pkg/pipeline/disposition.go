package pipeline

import "github.com/opscart/k8s-cost-agent/pkg/models"

// Disposition routes an approved action to automatic execution or human review
type Disposition string

const (
	DispositionPendingApproval Disposition = "pending_approval"
	DispositionAutoExecute     Disposition = "auto_execute"
)

// DefaultAutoExecuteConfidence must be strictly exceeded for automatic execution.
// A policy may raise it but not lower it.
const DefaultAutoExecuteConfidence = 0.9

// Policy classifies approved actions
type Policy struct {
	AutoExecuteConfidence float64
}

// DefaultPolicy uses DefaultAutoExecuteConfidence
var DefaultPolicy = Policy{AutoExecuteConfidence: DefaultAutoExecuteConfidence}

// Classify applies the rules in order: destructive kinds always wait for a human,
// then high confidence outside a dry run executes automatically.
func (p Policy) Classify(action *models.Action, dryRun bool) Disposition {
	if action.Kind.Destructive() {
		return DispositionPendingApproval
	}
	if action.Confidence > p.threshold() && !dryRun {
		return DispositionAutoExecute
	}
	return DispositionPendingApproval
}

// Split partitions approved actions into two disjoint sets, preserving input order.
// Actions in any other status are excluded from both.
func (p Policy) Split(actions []*models.Action, dryRun bool) (pending, auto []*models.Action) {
	for _, action := range actions {
		if action.Status != models.StatusApproved {
			continue
		}
		if p.Classify(action, dryRun) == DispositionAutoExecute {
			auto = append(auto, action)
		} else {
			pending = append(pending, action)
		}
	}
	return pending, auto
}

func (p Policy) threshold() float64 {
	if p.AutoExecuteConfidence < DefaultAutoExecuteConfidence {
		return DefaultAutoExecuteConfidence
	}
	return p.AutoExecuteConfidence
}

// Classify uses DefaultPolicy
func Classify(action *models.Action, dryRun bool) Disposition {
	return DefaultPolicy.Classify(action, dryRun)
}

// Split uses DefaultPolicy
func Split(actions []*models.Action, dryRun bool) (pending, auto []*models.Action) {
	return DefaultPolicy.Split(actions, dryRun)
}
