package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/datasource"
	"github.com/opscart/k8s-cost-agent/pkg/kubecost"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type fakeCluster struct {
	pods   []corev1.Pod
	claims []corev1.PersistentVolumeClaim
	hpas   []autoscalingv2.HorizontalPodAutoscaler
}

func (f *fakeCluster) ListPods(context.Context) []corev1.Pod { return f.pods }
func (f *fakeCluster) ListUnboundVolumeClaims(context.Context) []corev1.PersistentVolumeClaim {
	return f.claims
}
func (f *fakeCluster) ListAutoscalers(context.Context) []autoscalingv2.HorizontalPodAutoscaler {
	return f.hpas
}

type fakeMetrics struct {
	results map[string][]datasource.Sample
	err     error
}

func (f *fakeMetrics) Query(_ context.Context, expr string) ([]datasource.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[expr], nil
}
func (f *fakeMetrics) IsAvailable(context.Context) bool { return f.err == nil }
func (f *fakeMetrics) Name() string                     { return "fake" }

type fakeCosts struct {
	recs []kubecost.Recommendation
}

func (f *fakeCosts) MonthlyCost(context.Context) float64 { return 100 }
func (f *fakeCosts) SavingsRecommendations(context.Context) []kubecost.Recommendation {
	return f.recs
}

var logger = zap.NewNop()

func finishedPod(name string, phase corev1.PodPhase, finished time.Time) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{{
				State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{FinishedAt: metav1.NewTime(finished)}},
			}},
		},
	}
}

func TestPodCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cluster := &fakeCluster{pods: []corev1.Pod{
		finishedPod("old-job", corev1.PodSucceeded, now.Add(-48*time.Hour)),
		finishedPod("old-crash", corev1.PodFailed, now.Add(-25*time.Hour)),
		finishedPod("recent", corev1.PodSucceeded, now.Add(-time.Hour)),
		finishedPod("running", corev1.PodRunning, now.Add(-48*time.Hour)),
		{ObjectMeta: metav1.ObjectMeta{Name: "no-status", Namespace: "default"}, Status: corev1.PodStatus{Phase: corev1.PodFailed}},
	}}

	p := NewPodCleanup(cluster, logger)
	p.now = func() time.Time { return now }

	actions, err := p.Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, "old-job", actions[0].Target)
	assert.Equal(t, models.KindPodCleanup, actions[0].Kind)
	assert.Equal(t, 0.99, actions[0].Confidence)
	assert.Equal(t, 0.1, actions[0].EstimatedSavings)
	assert.Equal(t, "delete_pod", actions[0].Details["operation"])
	assert.Equal(t, "Failed", actions[1].Details["phase"])
}

func TestPVCCleanup(t *testing.T) {
	cluster := &fakeCluster{claims: []corev1.PersistentVolumeClaim{
		{ObjectMeta: metav1.ObjectMeta{Name: "data", Namespace: "db"}, Status: corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimPending}},
	}}

	actions, err := NewPVCCleanup(cluster, logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.KindPVCCleanup, actions[0].Kind)
	assert.Equal(t, "db", actions[0].Namespace)
	assert.Equal(t, 0.9, actions[0].Confidence)
	assert.Equal(t, 5.0, actions[0].EstimatedSavings)
	assert.Equal(t, "Pending", actions[0].Details["phase"])
}

func hpa(name string, min *int32, current int32) autoscalingv2.HorizontalPodAutoscaler {
	return autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec:       autoscalingv2.HorizontalPodAutoscalerSpec{MinReplicas: min, MaxReplicas: 10},
		Status:     autoscalingv2.HorizontalPodAutoscalerStatus{CurrentReplicas: current},
	}
}

func int32Ptr(v int32) *int32 { return &v }

func TestHPAOptimizer(t *testing.T) {
	cluster := &fakeCluster{hpas: []autoscalingv2.HorizontalPodAutoscaler{
		hpa("pinned", int32Ptr(3), 3),
		hpa("scaled-up", int32Ptr(3), 5),
		hpa("single", int32Ptr(1), 1),
		hpa("default-min", nil, 1),
	}}

	actions, err := NewHPAOptimizer(cluster, logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, "pinned", a.Target)
	assert.Equal(t, 0.75, a.Confidence)
	assert.Equal(t, 5.0, a.EstimatedSavings)
	assert.Equal(t, "Consider lowering minReplicas from 3", a.Details["recommendation"])
	assert.Equal(t, int32(10), a.Details["current_max"])
}

func TestNodeOptimizer(t *testing.T) {
	metrics := &fakeMetrics{results: map[string][]datasource.Sample{
		underutilizedNodesQuery: {
			{Labels: map[string]string{"node": "node-a"}, Value: 0.1},
			{Labels: map[string]string{}, Value: 0.2},
		},
	}}

	actions, err := NewNodeOptimizer(metrics, logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.KindNodeOptimization, actions[0].Kind)
	assert.Equal(t, "node-a", actions[0].Target)
	assert.Equal(t, "", actions[0].Namespace)
	assert.Equal(t, 100.0, actions[0].EstimatedSavings)
	assert.Equal(t, "cordon_and_drain", actions[0].Details["operation"])
}

func TestNodeOptimizerQueryFailure(t *testing.T) {
	_, err := NewNodeOptimizer(&fakeMetrics{err: errors.New("connection refused")}, logger).Analyze(context.Background(), nil)
	assert.Error(t, err)

	actions, err := NewNodeOptimizer(&fakeMetrics{}, logger).Analyze(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, actions)
}

func TestKubecostSuggester(t *testing.T) {
	saved := 42.0
	costs := &fakeCosts{recs: []kubecost.Recommendation{
		{Type: "Request Sizing", Name: "api", Namespace: "shop", Container: "app",
			RequestCurrent: map[string]string{"cpu": "1"}, RequestRec: map[string]string{"cpu": "200m"}, MonthlySavings: &saved},
		{Type: "Request Sizing", Name: "web", Namespace: "shop", Container: "nginx",
			RequestCurrent: map[string]string{"cpu": "500m"}, RequestRec: map[string]string{"cpu": "100m"}},
		{Type: "Request Sizing", Name: "broken", Namespace: "shop"},
		{Type: "Abandoned Workloads", Name: "old", Namespace: "shop"},
	}}

	actions, err := NewKubecostSuggester(costs, logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, models.KindRightsizing, actions[0].Kind)
	assert.Equal(t, 0.95, actions[0].Confidence)
	assert.Equal(t, 42.0, actions[0].EstimatedSavings)
	assert.Equal(t, 20.0, actions[1].EstimatedSavings)
	assert.Equal(t, "nginx", actions[1].Details["container"])
}

func ownedPod(name, rs string, cpuRequest string) corev1.Pod {
	return corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       "shop",
			OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: rs}},
		},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{
			Name: "app",
			Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpuRequest),
				corev1.ResourceMemory: resource.MustParse("1Gi"),
			}},
		}}},
	}
}

func TestRightsizer(t *testing.T) {
	labels := func(pod string) map[string]string {
		return map[string]string{"namespace": "shop", "pod": pod, "container": "app"}
	}
	metrics := &fakeMetrics{results: map[string][]datasource.Sample{
		p95CPUQuery: {
			{Labels: labels("api-7d9f8-abc"), Value: 0.1},   // 100m vs 1000m requested
			{Labels: labels("web-5c6d7-xyz"), Value: 0.45},  // 450m vs 500m requested
		},
		p95MemoryQuery: {
			{Labels: labels("api-7d9f8-abc"), Value: 256 * 1024 * 1024},
		},
	}}
	cluster := &fakeCluster{pods: []corev1.Pod{
		ownedPod("api-7d9f8-abc", "api-7d9f8", "1"),
		ownedPod("web-5c6d7-xyz", "web-5c6d7", "500m"),
		{ObjectMeta: metav1.ObjectMeta{Name: "bare", Namespace: "shop"}},
	}}

	actions, err := NewRightsizer(metrics, cluster, pricing.NewDefaultProvider(20.0, 2.0), logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, "api", a.Target)
	assert.Equal(t, "shop", a.Namespace)
	assert.Equal(t, 0.85, a.Confidence)
	assert.Equal(t, map[string]string{"cpu": "100m", "memory": "256Mi"}, a.Details["recommended_requests"])
	// 0.9 cores * 20 + 0.75 GiB * 2
	assert.InDelta(t, 19.5, a.EstimatedSavings, 0.0001)
}

func TestRightsizerFlatSavingsWithoutPricing(t *testing.T) {
	metrics := &fakeMetrics{results: map[string][]datasource.Sample{
		p95CPUQuery: {{Labels: map[string]string{"namespace": "shop", "pod": "api-1-a", "container": "app"}, Value: 0.01}},
	}}
	cluster := &fakeCluster{pods: []corev1.Pod{ownedPod("api-1-a", "api-1", "1")}}

	actions, err := NewRightsizer(metrics, cluster, nil, logger).Analyze(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, 15.0, actions[0].EstimatedSavings)
	// floor of 25m
	assert.Equal(t, "25m", actions[0].Details["recommended_requests"].(map[string]string)["cpu"])
}

func TestNewDefaultSetOrder(t *testing.T) {
	set := NewDefaultSet(Deps{
		Cluster:          &fakeCluster{},
		Metrics:          &fakeMetrics{},
		Costs:            &fakeCosts{},
		EnableRightsizer: true,
	})

	names := make([]string, 0, len(set))
	for _, p := range set {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"kubecost_suggester", "pod_cleanup", "pvc_cleanup", "hpa_optimizer", "node_optimizer", "rightsizer"}, names)

	assert.Len(t, NewDefaultSet(Deps{Cluster: &fakeCluster{}}), 3)
}
