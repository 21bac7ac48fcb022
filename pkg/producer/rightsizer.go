package producer

import (
	"context"
	"fmt"
	"strings"

	"github.com/opscart/k8s-cost-agent/pkg/datasource"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/pricing"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
)

const (
	p95CPUQuery    = `quantile_over_time(0.95, rate(container_cpu_usage_seconds_total{container!="", pod!=""}[5m])[7d:5m])`
	p95MemoryQuery = `quantile_over_time(0.95, container_memory_working_set_bytes{container!="", pod!=""}[7d:5m])`

	minRecommendedCPUMillicores = 25
	minRecommendedMemoryMiB     = 50

	// recommendation must be below 70% of the current CPU request
	significantReduction = 0.7

	rightsizerConfidence         = 0.85
	rightsizerFallbackSavingsUSD = 15.0
)

const mib = 1024 * 1024

// Rightsizer compares 7-day p95 usage with container requests
type Rightsizer struct {
	metrics datasource.MetricsProvider
	pods    PodLister
	pricing pricing.Provider
	logger  *zap.Logger
}

type containerRecommendation struct {
	cpuMillicores int64
	memoryBytes   int64
}

func (r containerRecommendation) requests() map[string]string {
	out := map[string]string{}
	if r.cpuMillicores > 0 {
		out["cpu"] = fmt.Sprintf("%dm", r.cpuMillicores)
	}
	if r.memoryBytes > 0 {
		out["memory"] = fmt.Sprintf("%dMi", r.memoryBytes/mib)
	}
	return out
}

// NewRightsizer builds the rightsizing producer; a nil pricing provider uses a flat savings estimate
func NewRightsizer(metrics datasource.MetricsProvider, pods PodLister, prices pricing.Provider, logger *zap.Logger) *Rightsizer {
	return &Rightsizer{metrics: metrics, pods: pods, pricing: prices, logger: logger.With(zap.String("tool", "Rightsizer"))}
}

func (r *Rightsizer) Name() string { return "rightsizer" }

func (r *Rightsizer) Analyze(ctx context.Context, _ *models.ClusterState) ([]*models.Action, error) {
	r.logger.Info("Starting workload rightsizing analysis")

	cpuSamples, cpuErr := r.metrics.Query(ctx, p95CPUQuery)
	memSamples, memErr := r.metrics.Query(ctx, p95MemoryQuery)
	if cpuErr != nil && memErr != nil {
		return nil, fmt.Errorf("failed to query usage percentiles: %w", cpuErr)
	}
	if len(cpuSamples) == 0 && len(memSamples) == 0 {
		r.logger.Warn("Could not retrieve metrics from Prometheus for rightsizing")
		return nil, nil
	}

	recs := buildRecommendations(cpuSamples, memSamples)

	var actions []*models.Action
	for _, pod := range r.pods.ListPods(ctx) {
		if len(pod.OwnerReferences) == 0 {
			continue
		}

		for _, container := range pod.Spec.Containers {
			rec, ok := recs[pod.Namespace+"/"+pod.Name+"/"+container.Name]
			if !ok {
				continue
			}

			current := container.Resources.Requests
			currentCPU := current.Cpu().MilliValue()
			if rec.cpuMillicores <= 0 || currentCPU <= 0 || float64(rec.cpuMillicores) >= float64(currentCPU)*significantReduction {
				continue
			}

			currentRequests := map[string]string{}
			for name, qty := range current {
				currentRequests[string(name)] = qty.String()
			}

			actions = appendAction(actions, r.logger, models.KindRightsizing, ownerWorkload(pod), pod.Namespace, map[string]interface{}{
				"operation":            "patch_workload_resources",
				"container":            container.Name,
				"current_requests":     currentRequests,
				"recommended_requests": rec.requests(),
			}, r.estimateSavings(ctx, current, rec), rightsizerConfidence)
		}
	}

	r.logger.Info("Generated rightsizing actions", zap.Int("count", len(actions)))
	return actions, nil
}

func (r *Rightsizer) estimateSavings(ctx context.Context, current corev1.ResourceList, rec containerRecommendation) float64 {
	if r.pricing == nil {
		return rightsizerFallbackSavingsUSD
	}

	currentRes := pricing.Resources{CPUMillicores: current.Cpu().MilliValue(), MemoryBytes: current.Memory().Value()}
	recommended := pricing.Resources{CPUMillicores: rec.cpuMillicores, MemoryBytes: currentRes.MemoryBytes}
	if rec.memoryBytes > 0 && rec.memoryBytes < currentRes.MemoryBytes {
		recommended.MemoryBytes = rec.memoryBytes
	}

	savings, err := pricing.EstimateSavings(ctx, r.pricing, currentRes, recommended)
	if err != nil {
		r.logger.Warn("Pricing unavailable, using flat savings estimate", zap.Error(err))
		return rightsizerFallbackSavingsUSD
	}
	return savings
}

func buildRecommendations(cpuSamples, memSamples []datasource.Sample) map[string]containerRecommendation {
	recs := make(map[string]containerRecommendation)
	key := func(s datasource.Sample) string {
		return s.Labels["namespace"] + "/" + s.Labels["pod"] + "/" + s.Labels["container"]
	}

	for _, s := range cpuSamples {
		rec := recs[key(s)]
		rec.cpuMillicores = maxInt64(minRecommendedCPUMillicores, int64(s.Value*1000))
		recs[key(s)] = rec
	}
	for _, s := range memSamples {
		rec := recs[key(s)]
		rec.memoryBytes = maxInt64(minRecommendedMemoryMiB, int64(s.Value)/mib) * mib
		recs[key(s)] = rec
	}
	return recs
}

// ownerWorkload resolves the pod's controller; ReplicaSet names lose their hash suffix
func ownerWorkload(pod corev1.Pod) string {
	owner := pod.OwnerReferences[0]
	if owner.Kind == "ReplicaSet" {
		if i := strings.LastIndex(owner.Name, "-"); i > 0 {
			return owner.Name[:i]
		}
	}
	return owner.Name
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
