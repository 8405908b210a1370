package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is consulted when FLEETKEYS_CONFIG_FILE is not set.
// A missing file is not an error; environment variables always win.
const DefaultConfigFile = "/etc/ssh/fleetkeys.yaml"

type Settings struct {
	// ServicePrefix restricts which units are eligible. Empty matches all.
	// The unprefixed SSH_PERMIT_SERVICE_PREFIX name is kept for
	// compatibility with existing deployments.
	ServicePrefix string `envconfig:"SSH_PERMIT_SERVICE_PREFIX" yaml:"service_prefix"`

	AuthorizedKeysFile string `envconfig:"AUTHORIZED_KEYS_FILE" yaml:"authorized_keys_file"`
	QueryCacheFile     string `envconfig:"QUERY_CACHE_FILE" yaml:"query_cache_file"`
	LockFile           string `envconfig:"LOCK_FILE" yaml:"lock_file"`
	LogPath            string `envconfig:"LOG_PATH" yaml:"log_path"`

	// KeyCommand is the fixed command executed inside each unit to print
	// its public key.
	KeyCommand []string `envconfig:"KEY_COMMAND" yaml:"key_command"`

	// ExecTimeout bounds a single in-unit exec. A unit that does not answer
	// within this window is treated as unreachable and retried next run.
	ExecTimeout time.Duration `envconfig:"EXEC_TIMEOUT" yaml:"exec_timeout"`

	K8sNamespace string `envconfig:"K8S_NAMESPACE" yaml:"k8s_namespace"`
	DockerHost   string `envconfig:"DOCKER_HOST" yaml:"docker_host"`

	// Schedule is an optional cron spec (e.g. "@every 1m"). When set the
	// process stays resident and refreshes the cache on that schedule
	// instead of running once and exiting.
	Schedule string `envconfig:"SCHEDULE" yaml:"schedule"`
}

func defaults() Settings {
	return Settings{
		AuthorizedKeysFile: "/etc/ssh/authorized_keys_cache",
		QueryCacheFile:     "/etc/ssh/query_cache",
		LockFile:           "/etc/ssh/cache_files.lock",
		KeyCommand:         []string{"cat", "/root/.ssh/id_ed25519.pub"},
		ExecTimeout:        10 * time.Second,
	}
}

// Load builds the settings in three layers: built-in defaults, an optional
// YAML config file, then environment variables.
func Load() (Settings, error) {
	cfg := defaults()

	path := os.Getenv("FLEETKEYS_CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := envconfig.Process("FLEETKEYS", &cfg); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}
