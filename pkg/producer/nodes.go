package producer

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-cost-agent/pkg/datasource"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

const (
	// requested CPU over capacity below 30%
	underutilizedNodesQuery = `(sum(kube_pod_container_resource_requests{resource="cpu", unit="core"}) by (node)) / (sum(kube_node_status_capacity{resource="cpu", unit="core"}) by (node)) < 0.3`

	nodeConfidence = 0.9
	nodeSavingsUSD = 100.0
)

// NodeOptimizer proposes cordoning and draining underutilized nodes
type NodeOptimizer struct {
	metrics datasource.MetricsProvider
	logger  *zap.Logger
}

func NewNodeOptimizer(metrics datasource.MetricsProvider, logger *zap.Logger) *NodeOptimizer {
	return &NodeOptimizer{metrics: metrics, logger: logger.With(zap.String("tool", "NodeOptimizer"))}
}

func (n *NodeOptimizer) Name() string { return "node_optimizer" }

func (n *NodeOptimizer) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	samples, err := n.metrics.Query(ctx, underutilizedNodesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query node utilization: %w", err)
	}
	if len(samples) == 0 {
		n.logger.Warn("Could not retrieve node utilization metrics from Prometheus")
		return nil, nil
	}

	var actions []*models.Action
	for _, sample := range samples {
		node := sample.Labels["node"]
		if node == "" {
			continue
		}
		actions = appendAction(actions, n.logger, models.KindNodeOptimization, node, "", map[string]interface{}{
			"operation": "cordon_and_drain",
			"reason":    "Node is underutilized, consolidating workloads to save costs.",
		}, nodeSavingsUSD, nodeConfidence)
	}

	n.logger.Info("Generated node optimization actions", zap.Int("count", len(actions)))
	return actions, nil
}
