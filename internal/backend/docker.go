package backend

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"

	"github.com/gluk-w/fleetkeys/internal/config"
)

// DockerBackend talks to a single-host Docker daemon over its control socket.
type DockerBackend struct {
	client *dockerclient.Client
	cfg    config.Settings
}

func NewDockerBackend(cfg config.Settings) *DockerBackend {
	return &DockerBackend{cfg: cfg}
}

func (d *DockerBackend) Initialize(ctx context.Context) error {
	var opts []dockerclient.Opt
	opts = append(opts, dockerclient.FromEnv)
	opts = append(opts, dockerclient.WithAPIVersionNegotiation())
	if d.cfg.DockerHost != "" {
		opts = append(opts, dockerclient.WithHost(d.cfg.DockerHost))
	}

	var err error
	d.client, err = dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}

	if _, err = d.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}

	log.Println("Docker daemon connected")
	return nil
}

func (d *DockerBackend) Name() string {
	return "docker"
}

func (d *DockerBackend) ListUnits(ctx context.Context, namePrefix string) ([]Unit, error) {
	// Default list options exclude stopped containers.
	containers, err := d.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var units []Unit
	for _, c := range containers {
		name := containerName(c.Names)
		if !strings.HasPrefix(name, namePrefix) {
			continue
		}
		units = append(units, Unit{
			ID:      c.ID,
			Name:    name,
			Running: c.State == "running",
		})
	}
	return units, nil
}

func (d *DockerBackend) FetchKey(ctx context.Context, unit Unit) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ExecTimeout)
	defer cancel()

	execCfg := container.ExecOptions{
		Cmd:          d.cfg.KeyCommand,
		AttachStdout: true,
		AttachStderr: true,
	}

	execID, err := d.client.ContainerExecCreate(ctx, unit.ID, execCfg)
	if err != nil {
		return "", fmt.Errorf("exec create: %w", err)
	}

	resp, err := d.client.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach: %w", err)
	}
	defer resp.Close()

	output, err := io.ReadAll(resp.Reader)
	if err != nil {
		return "", fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect: %w", err)
	}
	cleaned := stripDockerLogHeaders(output)
	if inspect.ExitCode != 0 {
		return "", fmt.Errorf("key command exited %d: %s", inspect.ExitCode, strings.TrimSpace(cleaned))
	}
	return cleaned, nil
}

// containerName strips the leading slash the Docker API puts on the primary
// container name.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func stripDockerLogHeaders(data []byte) string {
	// Docker multiplexed log format: [stream_type(1)][0(3)][size(4)][payload]
	// If the data starts with a valid header byte (0, 1, or 2), try to strip
	var result strings.Builder
	for len(data) > 0 {
		if len(data) >= 8 && (data[0] == 0 || data[0] == 1 || data[0] == 2) {
			size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
			data = data[8:]
			if size > 0 && size <= len(data) {
				result.Write(data[:size])
				data = data[size:]
			} else {
				result.Write(data)
				break
			}
		} else {
			result.Write(data)
			break
		}
	}
	return result.String()
}

var _ Backend = (*DockerBackend)(nil)
