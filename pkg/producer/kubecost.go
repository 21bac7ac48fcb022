package producer

import (
	"context"

	"github.com/opscart/k8s-cost-agent/pkg/kubecost"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

const (
	requestSizingType         = "Request Sizing"
	kubecostConfidence        = 0.95
	kubecostDefaultSavingsUSD = 20.0
)

// KubecostSuggester turns Kubecost request-sizing hints into rightsizing actions
type KubecostSuggester struct {
	costs  kubecost.CostProvider
	logger *zap.Logger
}

func NewKubecostSuggester(costs kubecost.CostProvider, logger *zap.Logger) *KubecostSuggester {
	return &KubecostSuggester{costs: costs, logger: logger.With(zap.String("tool", "KubecostSuggester"))}
}

func (k *KubecostSuggester) Name() string { return "kubecost_suggester" }

func (k *KubecostSuggester) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	k.logger.Info("Querying Kubecost for savings recommendations")

	var actions []*models.Action
	for _, rec := range k.costs.SavingsRecommendations(ctx) {
		if rec.Type != requestSizingType {
			continue
		}
		if rec.Name == "" || rec.Namespace == "" || rec.Container == "" || rec.RequestCurrent == nil || rec.RequestRec == nil {
			k.logger.Warn("Could not parse Kubecost rightsizing recommendation due to missing key",
				zap.String("name", rec.Name), zap.String("namespace", rec.Namespace))
			continue
		}

		savings := kubecostDefaultSavingsUSD
		if rec.MonthlySavings != nil {
			savings = *rec.MonthlySavings
		}

		actions = appendAction(actions, k.logger, models.KindRightsizing, rec.Name, rec.Namespace, map[string]interface{}{
			"operation":            "patch_workload_resources",
			"container":            rec.Container,
			"current_requests":     rec.RequestCurrent,
			"recommended_requests": rec.RequestRec,
		}, savings, kubecostConfidence)
	}

	k.logger.Info("Generated actions from Kubecost recommendations", zap.Int("count", len(actions)))
	return actions, nil
}
