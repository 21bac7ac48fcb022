package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func node(name string, ready bool) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("8Gi"),
			},
		},
	}
}

func pod(name, namespace, nodeName string, claims ...string) *corev1.Pod {
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PodSpec{NodeName: nodeName},
	}
	for _, claim := range claims {
		p.Spec.Volumes = append(p.Spec.Volumes, corev1.Volume{
			Name: claim,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
			},
		})
	}
	return p
}

func pvc(name, namespace string, phase corev1.PersistentVolumeClaimPhase) *corev1.PersistentVolumeClaim {
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: phase},
	}
}

func TestReadyNodeCount(t *testing.T) {
	clientset := fake.NewSimpleClientset(node("a", true), node("b", true), node("c", false))
	c := NewFromClientsets(clientset, nil, nil)

	count, err := c.ReadyNodeCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestReadyNodeCountError(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("list", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, assert.AnError
	})
	c := NewFromClientsets(clientset, nil, nil)

	_, err := c.ReadyNodeCount(context.Background())
	assert.Error(t, err)
}

func TestListFailuresReturnEmpty(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("list", "*", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, assert.AnError
	})
	c := NewFromClientsets(clientset, nil, nil)
	ctx := context.Background()

	assert.Empty(t, c.ListNodes(ctx))
	assert.Empty(t, c.ListPods(ctx))
	assert.Empty(t, c.ListUnboundVolumeClaims(ctx))
	assert.Empty(t, c.ListAutoscalers(ctx))
}

func TestListUnboundVolumeClaims(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		pvc("mounted", "default", corev1.ClaimBound),
		pvc("orphan", "default", corev1.ClaimBound),
		pvc("pending", "default", corev1.ClaimPending),
		pod("app", "default", "a", "mounted"),
	)
	c := NewFromClientsets(clientset, nil, nil)

	claims := c.ListUnboundVolumeClaims(context.Background())

	names := make([]string, 0, len(claims))
	for _, claim := range claims {
		names = append(names, claim.Name)
	}
	assert.ElementsMatch(t, []string{"orphan", "pending"}, names)
}

func TestListUnboundVolumeClaimsWhenPodsUnavailable(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		pvc("mounted", "default", corev1.ClaimBound),
		pvc("pending", "default", corev1.ClaimPending),
		pod("app", "default", "a", "mounted"),
	)
	clientset.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, assert.AnError
	})
	c := NewFromClientsets(clientset, nil, nil)

	assert.Empty(t, c.ListUnboundVolumeClaims(context.Background()), "in-use claims must not be reported when pods cannot be listed")
}

func TestDeleteWorkloadAndVolumeClaim(t *testing.T) {
	clientset := fake.NewSimpleClientset(pod("old", "default", "a"), pvc("data", "default", corev1.ClaimPending))
	c := NewFromClientsets(clientset, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.DeleteWorkload(ctx, "old", "default"))
	require.NoError(t, c.DeleteVolumeClaim(ctx, "data", "default"))

	assert.Error(t, c.DeleteWorkload(ctx, "old", "default"), "second delete should fail with not found")
	assert.Error(t, c.DeleteVolumeClaim(ctx, "missing", "default"))
}

func TestCordonNode(t *testing.T) {
	clientset := fake.NewSimpleClientset(node("a", true))
	c := NewFromClientsets(clientset, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.CordonNode(ctx, "a"))

	updated, err := clientset.CoreV1().Nodes().Get(ctx, "a", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, updated.Spec.Unschedulable)

	assert.Error(t, c.CordonNode(ctx, "missing"))
}

func TestDrainNodeSkipsProtectedNamespaces(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		pod("web", "default", "a"),
		pod("dns", "kube-system", "a"),
		pod("cost", "opencost", "a"),
		pod("other", "default", "b"),
	)

	var evicted []string
	clientset.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "eviction" {
			return false, nil, nil
		}
		eviction := action.(k8stesting.CreateAction).GetObject().(*policyv1.Eviction)
		require.NotNil(t, eviction.DeleteOptions)
		assert.Equal(t, int64(30), *eviction.DeleteOptions.GracePeriodSeconds)
		evicted = append(evicted, eviction.Namespace+"/"+eviction.Name)
		return true, nil, nil
	})

	c := NewFromClientsets(clientset, nil, nil)
	require.NoError(t, c.DrainNode(context.Background(), "a"))

	assert.Equal(t, []string{"default/web"}, evicted)
}

func TestDrainNodeStopsOnEvictionFailure(t *testing.T) {
	clientset := fake.NewSimpleClientset(pod("web", "default", "a"))
	clientset.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() == "eviction" {
			return true, nil, assert.AnError
		}
		return false, nil, nil
	})

	c := NewFromClientsets(clientset, nil, nil)
	err := c.DrainNode(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default/web")
}

func TestUtilization(t *testing.T) {
	clientset := fake.NewSimpleClientset(node("a", true), node("b", true))
	metricsClient := metricsfake.NewSimpleClientset()
	metricsClient.PrependReactor("list", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
		usage := corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("2"),
			corev1.ResourceMemory: resource.MustParse("4Gi"),
		}
		return true, &metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{
			{ObjectMeta: metav1.ObjectMeta{Name: "a"}, Usage: usage},
			{ObjectMeta: metav1.ObjectMeta{Name: "b"}, Usage: usage},
		}}, nil
	})

	c := NewFromClientsets(clientset, metricsClient, nil)
	u, err := c.Utilization(context.Background())
	require.NoError(t, err)

	// 4 of 8 cores, 8Gi of 16Gi
	assert.InDelta(t, 50.0, u.CPUPercent, 0.001)
	assert.InDelta(t, 50.0, u.MemoryPercent, 0.001)
}

func TestUtilizationWithoutMetricsClient(t *testing.T) {
	c := NewFromClientsets(fake.NewSimpleClientset(), nil, nil)
	_, err := c.Utilization(context.Background())
	assert.Error(t, err)
}
