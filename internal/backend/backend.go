// Package backend abstracts the two fleet APIs (Docker containers and
// Kubernetes pods) behind the two primitives the key syncer needs: list the
// running units and run a fixed command inside one of them.
package backend

import (
	"context"
)

// Unit is a single running compute instance observed in the fleet. The
// syncer never mutates units; the fleet creates and destroys them.
type Unit struct {
	// ID is stable within the backend's namespace: the container ID on
	// Docker, the pod name on Kubernetes. It is what the query cache keys on.
	ID string

	// Name is the human-readable name used for prefix matching.
	Name string

	Running bool
}

// Backend is the capability set shared by both fleet variants.
type Backend interface {
	// ListUnits returns the running units whose name starts with namePrefix.
	// An empty prefix matches everything.
	ListUnits(ctx context.Context, namePrefix string) ([]Unit, error)

	// FetchKey executes the configured key command inside the unit and
	// returns its output. Failure is per-unit recoverable: a unit that is
	// mid-termination can still show up as running in a stale listing.
	FetchKey(ctx context.Context, unit Unit) (string, error)

	Name() string
}
