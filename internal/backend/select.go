package backend

import (
	"context"
	"fmt"
	"log"

	"github.com/gluk-w/fleetkeys/internal/config"
)

// probe is one backend candidate: the handle plus its Initialize method.
type probe struct {
	backend Backend
	init    func(ctx context.Context) error
}

// Select resolves the active fleet backend once at startup. Probe order is
// fixed: Kubernetes first (in-cluster credentials or kubeconfig), then the
// local Docker daemon. Neither being reachable is fatal for the whole
// process since no fleet can be queried at all.
func Select(ctx context.Context, cfg config.Settings) (Backend, error) {
	k8s := NewKubernetesBackend(cfg)
	docker := NewDockerBackend(cfg)
	return selectFrom(ctx, []probe{
		{k8s, k8s.Initialize},
		{docker, docker.Initialize},
	})
}

func selectFrom(ctx context.Context, probes []probe) (Backend, error) {
	for _, p := range probes {
		if err := p.init(ctx); err != nil {
			log.Printf("%s backend unavailable: %v", p.backend.Name(), err)
			continue
		}
		log.Printf("Using %s backend", p.backend.Name())
		return p.backend, nil
	}
	return nil, fmt.Errorf("no fleet backend available (tried kubernetes, docker)")
}
