package producer

import (
	"context"

	"github.com/opscart/k8s-cost-agent/pkg/datasource"
	"github.com/opscart/k8s-cost-agent/pkg/kubecost"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/pricing"
	"go.uber.org/zap"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
)

// Producer proposes candidate actions from cluster observations
type Producer interface {
	Name() string
	Analyze(ctx context.Context, state *models.ClusterState) ([]*models.Action, error)
}

// PodLister lists pods across all namespaces
type PodLister interface {
	ListPods(ctx context.Context) []corev1.Pod
}

// ClaimLister lists volume claims that are unbound or unmounted
type ClaimLister interface {
	ListUnboundVolumeClaims(ctx context.Context) []corev1.PersistentVolumeClaim
}

// AutoscalerLister lists horizontal pod autoscalers
type AutoscalerLister interface {
	ListAutoscalers(ctx context.Context) []autoscalingv2.HorizontalPodAutoscaler
}

// ClusterSource is everything the cluster-backed producers read
type ClusterSource interface {
	PodLister
	ClaimLister
	AutoscalerLister
}

// Deps wires producers to their collaborators
type Deps struct {
	Cluster          ClusterSource
	Metrics          datasource.MetricsProvider
	Costs            kubecost.CostProvider
	Pricing          pricing.Provider
	EnableRightsizer bool
	Logger           *zap.Logger
}

// NewDefaultSet returns the producers in registration order.
// Producers whose collaborator is missing are left out.
func NewDefaultSet(deps Deps) []Producer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var set []Producer
	if deps.Costs != nil {
		set = append(set, NewKubecostSuggester(deps.Costs, logger))
	}
	if deps.Cluster != nil {
		set = append(set,
			NewPodCleanup(deps.Cluster, logger),
			NewPVCCleanup(deps.Cluster, logger),
			NewHPAOptimizer(deps.Cluster, logger),
		)
	}
	if deps.Metrics != nil {
		set = append(set, NewNodeOptimizer(deps.Metrics, logger))
		if deps.EnableRightsizer && deps.Cluster != nil {
			set = append(set, NewRightsizer(deps.Metrics, deps.Cluster, deps.Pricing, logger))
		}
	}
	return set
}

// appendAction builds an action and appends it, logging invalid input instead of failing the producer
func appendAction(actions []*models.Action, logger *zap.Logger, kind models.ActionKind, target, namespace string, details map[string]interface{}, savings, confidence float64) []*models.Action {
	action, err := models.NewAction(kind, target, namespace, details, savings, confidence)
	if err != nil {
		logger.Warn("Discarding invalid action", zap.String("target", target), zap.String("namespace", namespace), zap.Error(err))
		return actions
	}
	return append(actions, action)
}
