package safety

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-cost-agent/pkg/metrics"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

// Rejection reasons, recorded on the action's Error with detail after a colon
const (
	ReasonCriticalNamespace = "targets a critical namespace"
	ReasonLowConfidence     = "confidence below threshold"
	ReasonInsufficientNodes = "insufficient ready nodes"
)

// Floors for the configurable thresholds; lower values are raised to these
const (
	DefaultMinConfidence = 0.7
	DefaultMinReadyNodes = 3
)

// DefaultCriticalNamespaces are always protected, whatever the configuration adds
var DefaultCriticalNamespaces = []string{"kube-system", "kube-public", "opencost"}

// ReadyNodeCounter reports the live number of Ready nodes
type ReadyNodeCounter interface {
	ReadyNodeCount(ctx context.Context) (int, error)
}

type Config struct {
	CriticalNamespaces []string
	MinConfidence      float64
	MinReadyNodes      int
}

// Decision is the gate's verdict for one action
type Decision struct {
	Approved bool
	Reason   string
}

// Gate approves or rejects proposed actions. It keeps no state between evaluations.
type Gate struct {
	nodes         ReadyNodeCounter
	critical      map[string]bool
	minConfidence float64
	minReadyNodes int
	logger        *zap.Logger
}

func NewGate(nodes ReadyNodeCounter, cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}

	critical := make(map[string]bool)
	for _, ns := range DefaultCriticalNamespaces {
		critical[ns] = true
	}
	for _, ns := range cfg.CriticalNamespaces {
		critical[ns] = true
	}

	// configuration may tighten the thresholds but never loosen them
	minConfidence := cfg.MinConfidence
	if minConfidence < DefaultMinConfidence {
		minConfidence = DefaultMinConfidence
	}
	minReadyNodes := cfg.MinReadyNodes
	if minReadyNodes < DefaultMinReadyNodes {
		minReadyNodes = DefaultMinReadyNodes
	}

	return &Gate{
		nodes:         nodes,
		critical:      critical,
		minConfidence: minConfidence,
		minReadyNodes: minReadyNodes,
		logger:        logger.Named("safety"),
	}
}

// Check decides a single action; rules are applied in precedence order and the first match wins.
// A failed readiness query rejects the node action.
func (g *Gate) Check(ctx context.Context, action *models.Action) Decision {
	if g.critical[action.Namespace] {
		return reject(ReasonCriticalNamespace, action.Namespace)
	}

	if action.Confidence < g.minConfidence {
		return reject(ReasonLowConfidence, fmt.Sprintf("%.2f < %.2f", action.Confidence, g.minConfidence))
	}

	if action.Kind == models.KindNodeOptimization {
		if g.nodes == nil {
			return reject(ReasonInsufficientNodes, "node readiness unavailable")
		}
		ready, err := g.nodes.ReadyNodeCount(ctx)
		if err != nil {
			g.logger.Error("Failed to count ready nodes", zap.String("action_id", action.ID), zap.Error(err))
			return reject(ReasonInsufficientNodes, "node readiness unavailable")
		}
		if ready < g.minReadyNodes {
			return reject(ReasonInsufficientNodes, fmt.Sprintf("%d ready, need at least %d", ready, g.minReadyNodes))
		}
	}

	return Decision{Approved: true}
}

// Evaluate applies Check to every pending action in order, setting status and error in place
func (g *Gate) Evaluate(ctx context.Context, runID string, actions []*models.Action) (approved, rejected int) {
	log := g.logger.With(zap.String("run_id", runID))
	log.Info("Validating actions for safety", zap.Int("count", len(actions)))

	for _, action := range actions {
		if action.Status != models.StatusPending {
			log.Warn("Skipping action that is not pending", zap.String("action_id", action.ID), zap.String("status", string(action.Status)))
			continue
		}

		decision := g.Check(ctx, action)
		if decision.Approved {
			if err := action.Approve(); err != nil {
				log.Error("Failed to approve action", zap.String("action_id", action.ID), zap.Error(err))
				continue
			}
			approved++
			metrics.GateDecisions.WithLabelValues(string(action.Kind), "approved").Inc()
			log.Info("Action approved", zap.String("action_id", action.ID), zap.String("type", string(action.Kind)))
			continue
		}

		if err := action.Reject(decision.Reason); err != nil {
			log.Error("Failed to reject action", zap.String("action_id", action.ID), zap.Error(err))
			continue
		}
		rejected++
		metrics.GateDecisions.WithLabelValues(string(action.Kind), "rejected").Inc()
		log.Warn("Action rejected", zap.String("action_id", action.ID), zap.String("reason", decision.Reason))
	}
	return approved, rejected
}

func reject(reason, detail string) Decision {
	return Decision{Reason: reason + ": " + detail}
}
