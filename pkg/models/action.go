package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionKind is the type of cluster change an action proposes
type ActionKind string

const (
	KindPodCleanup       ActionKind = "pod_cleanup"
	KindPVCCleanup       ActionKind = "pvc_cleanup"
	KindRightsizing      ActionKind = "rightsizing"
	KindHPAOptimization  ActionKind = "hpa_optimization"
	KindNodeOptimization ActionKind = "node_optimization"
)

// ActionStatus is the lifecycle state of an action
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusRejected ActionStatus = "rejected"
	StatusExecuted ActionStatus = "executed"
	StatusFailed   ActionStatus = "failed"
)

var (
	ErrUnknownKind       = errors.New("unknown action kind")
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrInvalidSavings    = errors.New("estimated savings must be non-negative")
	ErrInvalidTransition = errors.New("invalid action status transition")
)

// Valid reports whether k is one of the known action kinds
func (k ActionKind) Valid() bool {
	switch k {
	case KindPodCleanup, KindPVCCleanup, KindRightsizing, KindHPAOptimization, KindNodeOptimization:
		return true
	}
	return false
}

// Destructive reports whether executing an action of this kind removes or evicts a resource
func (k ActionKind) Destructive() bool {
	switch k {
	case KindPodCleanup, KindPVCCleanup, KindNodeOptimization:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s
func (s ActionStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

var allowedTransitions = map[ActionStatus][]ActionStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusFailed, StatusRejected},
}

// Action is a single proposed cluster change
type Action struct {
	ID               string                 `json:"id" yaml:"id"`
	Kind             ActionKind             `json:"type" yaml:"type"`
	Target           string                 `json:"target" yaml:"target"`
	Namespace        string                 `json:"namespace" yaml:"namespace"`
	Details          map[string]interface{} `json:"action_details" yaml:"action_details"`
	EstimatedSavings float64                `json:"estimated_savings" yaml:"estimated_savings"`
	Confidence       float64                `json:"confidence" yaml:"confidence"`
	Status           ActionStatus           `json:"status" yaml:"status"`
	CreatedAt        time.Time              `json:"created_at" yaml:"created_at"`
	ExecutedAt       *time.Time             `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`
	Error            string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewAction validates the inputs and returns a pending action with a fresh ID
func NewAction(kind ActionKind, target, namespace string, details map[string]interface{}, savings, confidence float64) (*Action, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	// NaN fails both comparisons, so check the accepted range positively
	if !(confidence >= 0 && confidence <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, confidence)
	}
	if !(savings >= 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSavings, savings)
	}
	if details == nil {
		details = map[string]interface{}{}
	}

	return &Action{
		ID:               newActionID(),
		Kind:             kind,
		Target:           target,
		Namespace:        namespace,
		Details:          details,
		EstimatedSavings: savings,
		Confidence:       confidence,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func newActionID() string {
	id := uuid.New()
	return fmt.Sprintf("action_%x", id[:4])
}

// Approve moves a pending action to approved
func (a *Action) Approve() error {
	return a.transition(StatusApproved)
}

// Reject moves the action to rejected and records the reason
func (a *Action) Reject(reason string) error {
	if err := a.transition(StatusRejected); err != nil {
		return err
	}
	a.Error = reason
	return nil
}

// Resolve records the execution outcome of an approved action.
// ExecutedAt is stamped exactly once, here or in Dispose.
func (a *Action) Resolve(success bool, detail string, at time.Time) error {
	to := StatusExecuted
	if !success {
		to = StatusFailed
	}
	if err := a.transition(to); err != nil {
		return err
	}
	if !success {
		a.Error = detail
	}
	a.stamp(at)
	return nil
}

// Dispose marks an action as rejected by a human, stamping the disposition time
func (a *Action) Dispose(at time.Time) error {
	if err := a.transition(StatusRejected); err != nil {
		return err
	}
	a.stamp(at)
	return nil
}

func (a *Action) stamp(at time.Time) {
	t := at.UTC()
	a.ExecutedAt = &t
}

func (a *Action) transition(to ActionStatus) error {
	for _, allowed := range allowedTransitions[a.Status] {
		if allowed == to {
			a.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (action %s)", ErrInvalidTransition, a.Status, to, a.ID)
}

// Snapshot returns a deep copy safe to hand to readers outside the registry
func (a *Action) Snapshot() *Action {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Details != nil {
		cp.Details = make(map[string]interface{}, len(a.Details))
		for k, v := range a.Details {
			cp.Details[k] = v
		}
	}
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		cp.ExecutedAt = &t
	}
	return &cp
}

func (a *Action) String() string {
	ref := a.Target
	if a.Namespace != "" {
		ref = a.Namespace + "/" + a.Target
	}
	return fmt.Sprintf("[%s] %s %s (confidence %.2f, $%.2f/month)", a.Status, a.Kind, ref, a.Confidence, a.EstimatedSavings)
}
