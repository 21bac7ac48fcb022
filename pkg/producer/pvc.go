package producer

import (
	"context"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

const (
	pvcCleanupConfidence = 0.9
	pvcCleanupSavingsUSD = 5.0
)

// PVCCleanup proposes deleting volume claims that are unbound or unused
type PVCCleanup struct {
	claims ClaimLister
	logger *zap.Logger
}

func NewPVCCleanup(claims ClaimLister, logger *zap.Logger) *PVCCleanup {
	return &PVCCleanup{claims: claims, logger: logger.With(zap.String("tool", "PVCCleanup"))}
}

func (p *PVCCleanup) Name() string { return "pvc_cleanup" }

func (p *PVCCleanup) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	var actions []*models.Action
	for _, pvc := range p.claims.ListUnboundVolumeClaims(ctx) {
		actions = appendAction(actions, p.logger, models.KindPVCCleanup, pvc.Name, pvc.Namespace, map[string]interface{}{
			"operation": "delete_pvc",
			"phase":     string(pvc.Status.Phase),
		}, pvcCleanupSavingsUSD, pvcCleanupConfidence)
	}

	p.logger.Info("Generated PVC cleanup actions", zap.Int("count", len(actions)))
	return actions, nil
}
