package producer

import (
	"context"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
)

const (
	stalePodAge          = 24 * time.Hour
	podCleanupConfidence = 0.99
	podCleanupSavingsUSD = 0.1
)

// PodCleanup proposes deleting pods that finished more than a day ago
type PodCleanup struct {
	pods   PodLister
	now    func() time.Time
	logger *zap.Logger
}

func NewPodCleanup(pods PodLister, logger *zap.Logger) *PodCleanup {
	return &PodCleanup{pods: pods, now: time.Now, logger: logger.With(zap.String("tool", "PodCleanup"))}
}

func (p *PodCleanup) Name() string { return "pod_cleanup" }

func (p *PodCleanup) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	now := p.now()

	var actions []*models.Action
	for _, pod := range p.pods.ListPods(ctx) {
		if pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed {
			continue
		}
		finished, ok := finishedAt(pod)
		if !ok || now.Sub(finished) <= stalePodAge {
			continue
		}

		actions = appendAction(actions, p.logger, models.KindPodCleanup, pod.Name, pod.Namespace, map[string]interface{}{
			"operation": "delete_pod",
			"phase":     string(pod.Status.Phase),
		}, podCleanupSavingsUSD, podCleanupConfidence)
	}

	p.logger.Info("Generated pod cleanup actions", zap.Int("count", len(actions)))
	return actions, nil
}

// finishedAt reads the termination time of the pod's first container
func finishedAt(pod corev1.Pod) (time.Time, bool) {
	if len(pod.Status.ContainerStatuses) == 0 {
		return time.Time{}, false
	}
	terminated := pod.Status.ContainerStatuses[0].State.Terminated
	if terminated == nil || terminated.FinishedAt.IsZero() {
		return time.Time{}, false
	}
	return terminated.FinishedAt.Time, true
}
