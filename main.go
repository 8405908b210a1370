// fleetkeys maintains sshd's authorized_keys cache from public keys that
// live inside a fleet of ephemeral containers or pods. It is designed to be
// wired into sshd's AuthorizedKeysCommand: each invocation fetches keys from
// units it has not queried before and appends them to the cache file.
//
// An optional "full" argument discards all cached state and rebuilds the
// cache from the current fleet.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/fleetkeys/internal/backend"
	"github.com/gluk-w/fleetkeys/internal/config"
	"github.com/gluk-w/fleetkeys/internal/keycache"
	"github.com/gluk-w/fleetkeys/internal/logging"
	"github.com/gluk-w/fleetkeys/internal/runlock"
)

func main() {
	mode := keycache.Incremental
	if len(os.Args) == 2 {
		mode = keycache.ParseMode(os.Args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	logging.Init(cfg.LogPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := backend.Select(ctx, cfg)
	if err != nil {
		log.Fatalf("Could not initialize any fleet backend: %v", err)
	}

	builder := &keycache.Builder{
		Backend:            be,
		Store:              &keycache.Store{Path: cfg.QueryCacheFile},
		AuthorizedKeysFile: cfg.AuthorizedKeysFile,
		ServicePrefix:      cfg.ServicePrefix,
	}

	if cfg.Schedule == "" {
		if err := runOnce(ctx, cfg.LockFile, builder, mode); err != nil {
			log.Fatalf("Cache update: %v", err)
		}
		return
	}

	// Schedule mode: stay resident and refresh on the configured cron spec.
	// The first run honors the requested mode; ticks are incremental.
	if err := runOnce(ctx, cfg.LockFile, builder, mode); err != nil {
		log.Printf("Cache update: %v", err)
	}
	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := runOnce(ctx, cfg.LockFile, builder, keycache.Incremental); err != nil {
			log.Printf("Cache update: %v", err)
		}
	}); err != nil {
		log.Fatalf("Invalid schedule %q: %v", cfg.Schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// runOnce performs a single fetch-and-persist cycle under the cross-process
// lock. Contention is a benign no-op: a concurrent in-flight update makes
// this run redundant.
func runOnce(ctx context.Context, lockFile string, builder *keycache.Builder, mode keycache.Mode) error {
	lock, err := runlock.Acquire(lockFile)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			log.Println("The cache is currently updated by another invocation")
			return nil
		}
		return err
	}
	defer lock.Release()

	return builder.Run(ctx, mode)
}
