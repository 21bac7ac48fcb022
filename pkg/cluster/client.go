package cluster

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Provider is the set of cluster facts and mutations the agent depends on
type Provider interface {
	ListNodes(ctx context.Context) []corev1.Node
	ListPods(ctx context.Context) []corev1.Pod
	ListUnboundVolumeClaims(ctx context.Context) []corev1.PersistentVolumeClaim
	ListAutoscalers(ctx context.Context) []autoscalingv2.HorizontalPodAutoscaler
	ReadyNodeCount(ctx context.Context) (int, error)
	Utilization(ctx context.Context) (*Utilization, error)

	DeleteWorkload(ctx context.Context, name, namespace string) error
	DeleteVolumeClaim(ctx context.Context, name, namespace string) error
	CordonNode(ctx context.Context, name string) error
	DrainNode(ctx context.Context, name string) error
}

// Utilization is the cluster-wide usage as a percentage of allocatable capacity
type Utilization struct {
	CPUPercent    float64
	MemoryPercent float64
}

// DefaultDrainSkipNamespaces are never evicted during a drain
var DefaultDrainSkipNamespaces = []string{"kube-system", "opencost"}

// evictionGracePeriod is the grace period given to evicted pods, in seconds
const evictionGracePeriod int64 = 30

// Client implements Provider on top of client-go
type Client struct {
	clientset     kubernetes.Interface
	metricsClient metricsv.Interface
	skipDrain     map[string]bool
	logger        *zap.Logger
	inCluster     bool
}

// New builds a client from in-cluster config, falling back to a kubeconfig file.
// An empty kubeconfig means ~/.kube/config.
func New(kubeconfig string, logger *zap.Logger) (*Client, error) {
	config, inCluster, err := restConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	c := NewFromClientsets(clientset, metricsClient, logger)
	c.inCluster = inCluster

	mode := "kube-config"
	if inCluster {
		mode = "in-cluster"
	}
	c.logger.Info("Kubernetes client initialized", zap.String("mode", mode))
	return c, nil
}

// NewFromClientsets wraps existing clientsets; metricsClient may be nil
func NewFromClientsets(clientset kubernetes.Interface, metricsClient metricsv.Interface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]bool, len(DefaultDrainSkipNamespaces))
	for _, ns := range DefaultDrainSkipNamespaces {
		skip[ns] = true
	}
	return &Client{
		clientset:     clientset,
		metricsClient: metricsClient,
		skipDrain:     skip,
		logger:        logger.Named("cluster"),
	}
}

func restConfig(kubeconfig string) (*rest.Config, bool, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, true, nil
	}

	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, false, err
	}
	return config, false, nil
}

// Ping verifies the API server is reachable
func (c *Client) Ping(ctx context.Context) (string, error) {
	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to connect to cluster: %w", err)
	}
	return version.GitVersion, nil
}

// Clientset exposes the underlying clientset for cloud detection
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// ListNodes returns all nodes, or nil when the API call fails
func (c *Client) ListNodes(ctx context.Context) []corev1.Node {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Error("Failed to get nodes", zap.Error(err))
		return nil
	}
	return nodes.Items
}

// ListPods returns pods across all namespaces, or nil when the API call fails
func (c *Client) ListPods(ctx context.Context) []corev1.Pod {
	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Error("Failed to get pods", zap.Error(err))
		return nil
	}
	return pods.Items
}

// ListUnboundVolumeClaims returns claims that are not Bound or not mounted by any pod
func (c *Client) ListUnboundVolumeClaims(ctx context.Context) []corev1.PersistentVolumeClaim {
	pvcs, err := c.clientset.CoreV1().PersistentVolumeClaims(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Error("Failed to get unbound PVCs", zap.Error(err))
		return nil
	}

	// without the pod list every claim would look unmounted
	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Error("Failed to get pods for PVC mount check", zap.Error(err))
		return nil
	}

	mounted := make(map[string]bool)
	for _, pod := range pods.Items {
		for _, volume := range pod.Spec.Volumes {
			if volume.PersistentVolumeClaim != nil {
				mounted[pod.Namespace+"/"+volume.PersistentVolumeClaim.ClaimName] = true
			}
		}
	}

	var unbound []corev1.PersistentVolumeClaim
	for _, pvc := range pvcs.Items {
		if pvc.Status.Phase != corev1.ClaimBound || !mounted[pvc.Namespace+"/"+pvc.Name] {
			unbound = append(unbound, pvc)
		}
	}
	return unbound
}

// ListAutoscalers returns HPAs across all namespaces, or nil when the API call fails
func (c *Client) ListAutoscalers(ctx context.Context) []autoscalingv2.HorizontalPodAutoscaler {
	hpas, err := c.clientset.AutoscalingV2().HorizontalPodAutoscalers(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		c.logger.Error("Failed to list HPAs", zap.Error(err))
		return nil
	}
	return hpas.Items
}

// ReadyNodeCount counts nodes whose Ready condition is True
func (c *Client) ReadyNodeCount(ctx context.Context) (int, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list nodes: %w", err)
	}

	ready := 0
	for _, node := range nodes.Items {
		if IsNodeReady(node) {
			ready++
		}
	}
	return ready, nil
}

// IsNodeReady reports whether the node's Ready condition is True
func IsNodeReady(node corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// Utilization sums node metrics against node allocatable capacity
func (c *Client) Utilization(ctx context.Context) (*Utilization, error) {
	if c.metricsClient == nil {
		return nil, fmt.Errorf("metrics client not configured")
	}

	nodeMetrics, err := c.metricsClient.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get node metrics: %w", err)
	}

	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var capCPU, capMem int64
	for _, node := range nodes.Items {
		capCPU += node.Status.Allocatable.Cpu().MilliValue()
		capMem += node.Status.Allocatable.Memory().Value()
	}

	var usedCPU, usedMem int64
	for _, nm := range nodeMetrics.Items {
		usedCPU += nm.Usage.Cpu().MilliValue()
		usedMem += nm.Usage.Memory().Value()
	}

	u := &Utilization{}
	if capCPU > 0 {
		u.CPUPercent = float64(usedCPU) / float64(capCPU) * 100
	}
	if capMem > 0 {
		u.MemoryPercent = float64(usedMem) / float64(capMem) * 100
	}
	return u, nil
}

// DeleteWorkload deletes the named pod
func (c *Client) DeleteWorkload(ctx context.Context, name, namespace string) error {
	if err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		c.logger.Error("Failed to delete pod", zap.String("pod_name", name), zap.String("namespace", namespace), zap.Error(err))
		return fmt.Errorf("failed to delete pod %s/%s: %w", namespace, name, err)
	}
	c.logger.Info("Successfully deleted pod", zap.String("pod_name", name), zap.String("namespace", namespace))
	return nil
}

// DeleteVolumeClaim deletes the named PVC
func (c *Client) DeleteVolumeClaim(ctx context.Context, name, namespace string) error {
	if err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		c.logger.Error("Failed to delete PVC", zap.String("pvc_name", name), zap.String("namespace", namespace), zap.Error(err))
		return fmt.Errorf("failed to delete pvc %s/%s: %w", namespace, name, err)
	}
	c.logger.Info("Successfully deleted PVC", zap.String("pvc_name", name), zap.String("namespace", namespace))
	return nil
}

// CordonNode marks the node unschedulable
func (c *Client) CordonNode(ctx context.Context, name string) error {
	patch := []byte(`{"spec":{"unschedulable":true}}`)
	if _, err := c.clientset.CoreV1().Nodes().Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{}); err != nil {
		c.logger.Error("Failed to cordon node", zap.String("node_name", name), zap.Error(err))
		return fmt.Errorf("failed to cordon node %s: %w", name, err)
	}
	c.logger.Info("Successfully cordoned node", zap.String("node_name", name))
	return nil
}

// DrainNode evicts every pod on the node except those in protected namespaces.
// The first failed eviction aborts the drain.
func (c *Client) DrainNode(ctx context.Context, name string) error {
	log := c.logger.With(zap.String("node_name", name))

	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + name,
	})
	if err != nil {
		log.Error("Failed to drain node", zap.Error(err))
		return fmt.Errorf("failed to list pods on node %s: %w", name, err)
	}

	grace := evictionGracePeriod
	for _, pod := range pods.Items {
		if pod.Spec.NodeName != name {
			continue
		}
		if c.skipDrain[pod.Namespace] {
			log.Info("Skipping eviction for system pod", zap.String("pod_name", pod.Name), zap.String("namespace", pod.Namespace))
			continue
		}

		eviction := &policyv1.Eviction{
			ObjectMeta:    metav1.ObjectMeta{Name: pod.Name, Namespace: pod.Namespace},
			DeleteOptions: &metav1.DeleteOptions{GracePeriodSeconds: &grace},
		}
		if err := c.clientset.CoreV1().Pods(pod.Namespace).EvictV1(ctx, eviction); err != nil {
			log.Error("Failed to drain node", zap.String("pod_name", pod.Name), zap.Error(err))
			return fmt.Errorf("failed to evict pod %s/%s: %w", pod.Namespace, pod.Name, err)
		}
		log.Info("Evicted pod", zap.String("pod_name", pod.Name), zap.String("namespace", pod.Namespace))
	}

	log.Info("Successfully drained pods from node")
	return nil
}
