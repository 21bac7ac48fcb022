package agent

import (
	"context"
	"fmt"

	"github.com/opscart/k8s-cost-agent/pkg/cluster"
	"github.com/opscart/k8s-cost-agent/pkg/config"
	"github.com/opscart/k8s-cost-agent/pkg/datasource"
	"github.com/opscart/k8s-cost-agent/pkg/executor"
	"github.com/opscart/k8s-cost-agent/pkg/kubecost"
	"github.com/opscart/k8s-cost-agent/pkg/pipeline"
	"github.com/opscart/k8s-cost-agent/pkg/pricing"
	"github.com/opscart/k8s-cost-agent/pkg/producer"
	"github.com/opscart/k8s-cost-agent/pkg/registry"
	"github.com/opscart/k8s-cost-agent/pkg/safety"
	"github.com/opscart/k8s-cost-agent/pkg/storage"
	"github.com/opscart/k8s-cost-agent/pkg/summarizer"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
)

// NewFromConfig wires every collaborator from cfg.
// Missing cluster credentials leave the service degraded rather than failing;
// an unreachable database is a hard error because storage was explicitly enabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		clusterSource   pipeline.ClusterSource
		producerCluster producer.ClusterSource
		readyNodes      safety.ReadyNodeCounter
		execCluster     executor.Cluster
		clientset       kubernetes.Interface
		degraded        error
	)
	client, err := cluster.New(cfg.Kubeconfig, logger)
	if err != nil {
		logger.Error("Cluster client unavailable, starting degraded", zap.Error(err))
		degraded = err
	} else {
		// assigned only on success so the interfaces stay nil rather than typed-nil
		clusterSource, producerCluster, readyNodes, execCluster = client, client, client, client
		clientset = client.Clientset()
	}

	var metricsSource datasource.MetricsProvider
	prom, err := datasource.NewPrometheusSource(datasource.Config{
		PrometheusURL: cfg.PrometheusURL,
		Timeout:       cfg.PrometheusTimeout,
	}, logger)
	if err != nil {
		logger.Warn("Prometheus unavailable, node and rightsizing producers disabled", zap.Error(err))
	} else {
		metricsSource = prom
	}

	costs := kubecost.NewClient(cfg.KubecostURL, logger)

	var sum summarizer.Summarizer
	if chat, err := summarizer.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger); err != nil {
		logger.Warn("Summarizer disabled", zap.Error(err))
	} else {
		sum = chat
	}

	priceProvider, err := pricing.NewProvider(ctx, clientset, &pricing.Config{
		Provider: cfg.PricingProvider,
		Region:   cfg.PricingRegion,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing provider: %w", err)
	}

	gate := safety.NewGate(readyNodes, safety.Config{
		CriticalNamespaces: cfg.CriticalNamespaces,
		MinConfidence:      cfg.MinConfidence,
		MinReadyNodes:      cfg.MinReadyNodes,
	}, logger)

	workflow := pipeline.NewWorkflow(pipeline.Options{
		Cluster:    clusterSource,
		Costs:      costs,
		Summarizer: sum,
		Producers: producer.NewDefaultSet(producer.Deps{
			Cluster:          producerCluster,
			Metrics:          metricsSource,
			Costs:            costs,
			Pricing:          priceProvider,
			EnableRightsizer: cfg.EnableRightsizer,
			Logger:           logger,
		}),
		Gate:   gate,
		Policy: pipeline.Policy{AutoExecuteConfidence: cfg.AutoExecuteConfidence},
		Logger: logger,
	})

	var store storage.Store
	if cfg.StorageEnabled {
		sqlStore, err := storage.New(storage.Config{Driver: cfg.StorageDriver, URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		store = sqlStore
	}

	return New(Options{
		Runner:   workflow,
		Registry: registry.New(cfg.ActivityWindow),
		Executor: executor.New(execCluster, logger),
		Store:    store,
		Degraded: degraded,
		Logger:   logger,
	}), nil
}
