// Package k8s reads worker health from a Kubernetes cluster and exposes it as metric gauges.
package k8s

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/u2takey/go-utils/filesystem/homedir"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/aonescu/chaosguard/internal/metrics"
)

const (
	MetricWorkerReadyRatio = "worker_ready_ratio"
	MetricWorkerRestarts   = "worker_restarts"
)

// NewClientset builds a clientset from kubeconfig, defaulting to ~/.kube/config.
func NewClientset(kubeconfig string) (*kubernetes.Clientset, error) {
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

// WorkerStatus summarizes the pods matching a worker selector
type WorkerStatus struct {
	Total    int
	Ready    int
	Restarts int32
}

// ReadyRatio is the percentage of ready pods.
func (s WorkerStatus) ReadyRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Ready) / float64(s.Total) * 100
}

// WorkerWatcher lists worker pods for the gauges
type WorkerWatcher struct {
	client    kubernetes.Interface
	namespace string
	selector  string
}

func NewWorkerWatcher(client kubernetes.Interface, namespace, selector string) *WorkerWatcher {
	return &WorkerWatcher{client: client, namespace: namespace, selector: selector}
}

// Status lists matching pods. No matching pods is an error so the gauges are omitted.
func (w *WorkerWatcher) Status(ctx context.Context) (WorkerStatus, error) {
	pods, err := w.client.CoreV1().Pods(w.namespace).List(ctx, metav1.ListOptions{LabelSelector: w.selector})
	if err != nil {
		return WorkerStatus{}, fmt.Errorf("failed to list worker pods: %w", err)
	}

	var status WorkerStatus
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.DeletionTimestamp != nil {
			continue
		}
		status.Total++
		if podReady(pod) {
			status.Ready++
		}
		for _, cs := range pod.Status.ContainerStatuses {
			status.Restarts += cs.RestartCount
		}
	}

	if status.Total == 0 {
		return WorkerStatus{}, fmt.Errorf("no worker pods match %q in namespace %q", w.selector, w.namespace)
	}

	logrus.WithFields(logrus.Fields{
		"namespace": w.namespace,
		"selector":  w.selector,
		"ready":     status.Ready,
		"total":     status.Total,
		"restarts":  status.Restarts,
	}).Debug("Worker pods listed")
	return status, nil
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// WorkerGauges returns worker_ready_ratio and worker_restarts gauges.
func WorkerGauges(client kubernetes.Interface, namespace, selector string) []metrics.Gauge {
	w := NewWorkerWatcher(client, namespace, selector)
	return []metrics.Gauge{
		{
			Name: MetricWorkerReadyRatio,
			Read: func(ctx context.Context) (float64, error) {
				s, err := w.Status(ctx)
				if err != nil {
					return 0, err
				}
				return s.ReadyRatio(), nil
			},
		},
		{
			Name: MetricWorkerRestarts,
			Read: func(ctx context.Context) (float64, error) {
				s, err := w.Status(ctx)
				if err != nil {
					return 0, err
				}
				return float64(s.Restarts), nil
			},
		},
	}
}
