// Package keycache builds the host's authorized_keys cache from keys that
// live inside the fleet's units, tracking which units were already queried
// so repeated runs stay cheap.
package keycache

import (
	"context"
	"fmt"
	"log"

	"github.com/gluk-w/fleetkeys/internal/backend"
)

type Mode int

const (
	// Incremental fetches only units absent from the query cache and
	// appends their keys to the cache file.
	Incremental Mode = iota
	// Full discards all prior state and re-queries every matching unit.
	Full
)

func ParseMode(arg string) Mode {
	if arg == "full" {
		return Full
	}
	return Incremental
}

// Builder runs one fetch-and-cache cycle. The caller holds the run lock for
// the whole of Run; the builder itself does no locking.
type Builder struct {
	Backend            backend.Backend
	Store              *Store
	AuthorizedKeysFile string
	ServicePrefix      string
}

func (b *Builder) Run(ctx context.Context, mode Mode) error {
	queried := map[string]struct{}{}
	if mode == Full {
		// Delete rather than just ignore, so a crash mid-run cannot leave
		// the old skip list behind for the next invocation to trust.
		if err := b.Store.Discard(); err != nil {
			return err
		}
	} else {
		var err error
		queried, err = b.Store.Load()
		if err != nil {
			return err
		}
	}

	units, err := b.Backend.ListUnits(ctx, b.ServicePrefix)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}

	if len(units) == 0 && mode == Incremental {
		// A transient empty listing must not wipe the skip list.
		log.Printf("No matching units; query cache left untouched")
		return nil
	}

	var keys []string
	newCache := make(map[string]struct{})
	for _, unit := range units {
		if !unit.Running {
			continue
		}
		if _, ok := queried[unit.ID]; ok {
			// Carried forward without a backend call. Stale keys are the
			// accepted cost; a full rebuild clears them.
			newCache[unit.ID] = struct{}{}
			continue
		}

		output, err := b.Backend.FetchKey(ctx, unit)
		if err != nil {
			// The unit will be retried on the next run since it is not
			// recorded as queried.
			log.Printf("Could not reach unit %s: %v", unit.Name, err)
			continue
		}

		newCache[unit.ID] = struct{}{}
		if key, ok := AcceptKey(output); ok {
			keys = append(keys, key)
		}
	}

	if err := WriteAuthorizedKeys(b.AuthorizedKeysFile, keys, mode == Full); err != nil {
		return err
	}
	if err := b.Store.Save(newCache); err != nil {
		return err
	}

	log.Printf("Cache updated: %d units listed, %d keys added, %d units cached", len(units), len(keys), len(newCache))
	return nil
}
