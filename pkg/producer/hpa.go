package producer

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

const (
	hpaConfidence           = 0.75
	hpaSavingsPerReplicaUSD = 2.5
)

// HPAOptimizer flags autoscalers pinned at a minReplicas above one
type HPAOptimizer struct {
	autoscalers AutoscalerLister
	logger      *zap.Logger
}

func NewHPAOptimizer(autoscalers AutoscalerLister, logger *zap.Logger) *HPAOptimizer {
	return &HPAOptimizer{autoscalers: autoscalers, logger: logger.With(zap.String("tool", "HPAOptimizer"))}
}

func (h *HPAOptimizer) Name() string { return "hpa_optimizer" }

func (h *HPAOptimizer) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	var actions []*models.Action
	for _, hpa := range h.autoscalers.ListAutoscalers(ctx) {
		minReplicas := int32(1)
		if hpa.Spec.MinReplicas != nil {
			minReplicas = *hpa.Spec.MinReplicas
		}
		if hpa.Status.CurrentReplicas != minReplicas || minReplicas <= 1 {
			continue
		}

		actions = appendAction(actions, h.logger, models.KindHPAOptimization, hpa.Name, hpa.Namespace, map[string]interface{}{
			"operation":      "patch_hpa",
			"recommendation": fmt.Sprintf("Consider lowering minReplicas from %d", minReplicas),
			"current_min":    minReplicas,
			"current_max":    hpa.Spec.MaxReplicas,
		}, hpaSavingsPerReplicaUSD*float64(minReplicas-1), hpaConfidence)
	}

	h.logger.Info("Generated HPA optimization actions", zap.Int("count", len(actions)))
	return actions, nil
}
