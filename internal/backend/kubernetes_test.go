package backend

import (
	"fmt"
	"testing"

	"github.com/gluk-w/fleetkeys/internal/config"
)

func TestResolveNamespacePrefersConfig(t *testing.T) {
	k := NewKubernetesBackend(config.Settings{K8sNamespace: "workspaces"})
	k.readNamespaceFile = func() (string, error) {
		t.Fatal("service account metadata must not be consulted when configured")
		return "", nil
	}

	if err := k.resolveNamespace(); err != nil {
		t.Fatalf("resolveNamespace() error: %v", err)
	}
	if k.namespace != "workspaces" {
		t.Errorf("expected configured namespace, got %q", k.namespace)
	}
}

func TestResolveNamespaceFromServiceAccount(t *testing.T) {
	k := NewKubernetesBackend(config.Settings{})
	k.readNamespaceFile = func() (string, error) { return "team-a", nil }

	if err := k.resolveNamespace(); err != nil {
		t.Fatalf("resolveNamespace() error: %v", err)
	}
	if k.namespace != "team-a" {
		t.Errorf("expected namespace from service account metadata, got %q", k.namespace)
	}
}

func TestResolveNamespaceFailure(t *testing.T) {
	k := NewKubernetesBackend(config.Settings{})
	k.readNamespaceFile = func() (string, error) { return "", fmt.Errorf("no such file") }

	if err := k.resolveNamespace(); err == nil {
		t.Fatal("expected an error when namespace cannot be resolved")
	}
}
