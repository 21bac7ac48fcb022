package executor

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"go.uber.org/zap"
)

// Cluster is the set of mutations an executor may perform
type Cluster interface {
	DeleteWorkload(ctx context.Context, name, namespace string) error
	DeleteVolumeClaim(ctx context.Context, name, namespace string) error
	CordonNode(ctx context.Context, name string) error
	DrainNode(ctx context.Context, name string) error
}

// Executor performs the single cluster call an action maps to. It never retries.
type Executor struct {
	cluster Cluster
	logger  *zap.Logger
}

func New(cluster Cluster, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cluster: cluster, logger: logger.Named("executor")}
}

// Execute runs the action and reports success, or a failure detail.
// A panic in the cluster call is reported as a failure.
func (e *Executor) Execute(ctx context.Context, action *models.Action) (ok bool, detail string) {
	log := e.logger.With(
		zap.String("action_id", action.ID),
		zap.String("type", string(action.Kind)),
		zap.String("target", action.Target))

	defer func() {
		if r := recover(); r != nil {
			ok, detail = false, fmt.Sprintf("execution panicked: %v", r)
			log.Error("Execution of action failed", zap.String("error", detail))
		}
	}()

	if e.cluster == nil {
		return false, "cluster client not initialized"
	}

	log.Info("Executing action")

	var err error
	switch action.Kind {
	case models.KindPodCleanup:
		err = e.cluster.DeleteWorkload(ctx, action.Target, action.Namespace)
	case models.KindPVCCleanup:
		err = e.cluster.DeleteVolumeClaim(ctx, action.Target, action.Namespace)
	case models.KindNodeOptimization:
		if err = e.cluster.CordonNode(ctx, action.Target); err == nil {
			err = e.cluster.DrainNode(ctx, action.Target)
		}
	default:
		log.Warn("Execution logic not implemented for action type, treating as success")
	}

	if err != nil {
		log.Error("Execution of action failed", zap.Error(err))
		return false, err.Error()
	}
	log.Info("Action executed successfully")
	return true, ""
}
