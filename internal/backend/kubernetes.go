package backend

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/client-go/util/homedir"

	"github.com/gluk-w/fleetkeys/internal/config"
)

// namespaceFile holds the namespace the pod runs in when deployed in-cluster.
const namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// KubernetesBackend lists and execs into pods in a single namespace.
type KubernetesBackend struct {
	clientset  *kubernetes.Clientset
	restConfig *rest.Config
	cfg        config.Settings
	namespace  string

	// readNamespaceFile is swapped out in tests.
	readNamespaceFile func() (string, error)
}

func NewKubernetesBackend(cfg config.Settings) *KubernetesBackend {
	return &KubernetesBackend{cfg: cfg, readNamespaceFile: readServiceAccountNamespace}
}

func (k *KubernetesBackend) Initialize(ctx context.Context) error {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
		if home := homedir.HomeDir(); home != "" && kubeconfig == "" {
			kubeconfig = home + "/.kube/config"
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return fmt.Errorf("k8s config: %w", err)
		}
	}

	k.restConfig = cfg
	k.clientset, err = kubernetes.NewForConfig(cfg)
	if err != nil {
		return fmt.Errorf("k8s clientset: %w", err)
	}

	if err := k.resolveNamespace(); err != nil {
		return err
	}

	_, err = k.clientset.CoreV1().Namespaces().Get(ctx, k.namespace, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("k8s namespace check: %w", err)
	}

	log.Printf("Kubernetes cluster connected (namespace %s)", k.namespace)
	return nil
}

// resolveNamespace prefers the configured namespace and falls back to the
// service account metadata mounted into every in-cluster pod.
func (k *KubernetesBackend) resolveNamespace() error {
	if k.cfg.K8sNamespace != "" {
		k.namespace = k.cfg.K8sNamespace
		return nil
	}
	ns, err := k.readNamespaceFile()
	if err != nil {
		return fmt.Errorf("resolve namespace: %w", err)
	}
	k.namespace = ns
	return nil
}

func readServiceAccountNamespace() (string, error) {
	data, err := os.ReadFile(namespaceFile)
	if err != nil {
		return "", err
	}
	ns := strings.TrimSpace(string(data))
	if ns == "" {
		return "", fmt.Errorf("empty namespace in %s", namespaceFile)
	}
	return ns, nil
}

func (k *KubernetesBackend) Name() string {
	return "kubernetes"
}

func (k *KubernetesBackend) ListUnits(ctx context.Context, namePrefix string) ([]Unit, error) {
	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "status.phase=Running",
	})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	var units []Unit
	for _, pod := range pods.Items {
		name := pod.ObjectMeta.Name
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		units = append(units, Unit{
			ID:      name,
			Name:    name,
			Running: pod.Status.Phase == corev1.PodRunning,
		})
	}
	return units, nil
}

func (k *KubernetesBackend) FetchKey(ctx context.Context, unit Unit) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, k.cfg.ExecTimeout)
	defer cancel()

	req := k.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(unit.ID).
		Namespace(k.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: k.cfg.KeyCommand,
			Stdin:   false,
			Stdout:  true,
			Stderr:  true,
			TTY:     false,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(k.restConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		// A pod stuck in Terminating still lists as Running but the exec
		// subresource refuses the connection.
		return "", fmt.Errorf("exec in pod %s: %w", unit.ID, err)
	}
	return stdout.String(), nil
}

var _ Backend = (*KubernetesBackend)(nil)
