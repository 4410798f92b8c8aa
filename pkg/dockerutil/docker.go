// Package dockerutil wraps the Docker SDK for the orchestrator: launching
// long-lived chain-node containers, running one-shot tool containers to
// completion, and destroying everything a run created by label filter.
package dockerutil

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/ethereum/go-ethereum/log"
)

// RunLabel marks every resource created for a devnet run; the value is the
// run ID, which lets teardown find a run's resources without tracking IDs.
const RunLabel = "devnet.run"

// RunError is a one-shot container that exited non-zero. Stderr is captured
// verbatim for operator diagnosis.
type RunError struct {
	Image    string
	ExitCode int
	Stderr   string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("container %s exited with code %d: %s", e.Image, e.ExitCode, e.Stderr)
}

// PortBinding maps a container port to a host port under a label.
type PortBinding struct {
	Label         string
	ContainerPort int
	HostPort      int
}

// Mount binds a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ContainerOpts describes one container to create.
type ContainerOpts struct {
	Name    string
	Image   string
	Cmd     []string
	Env     []string
	Ports   []PortBinding
	Mounts  []Mount
	Network string
	RunID   string
	// StartTimeout bounds the wait for a long-lived container to report
	// running. Zero means defaultStartTimeout.
	StartTimeout time.Duration
}

const defaultStartTimeout = 30 * time.Second

func (o ContainerOpts) startTimeout() time.Duration {
	if o.StartTimeout > 0 {
		return o.StartTimeout
	}
	return defaultStartTimeout
}

// Runtime is a Docker client scoped to devnet operations.
type Runtime struct {
	api *client.Client
	log log.Logger
}

// NewRuntime creates a Docker client and verifies the daemon is reachable.
func NewRuntime(ctx context.Context, logger log.Logger) (*Runtime, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := api.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to docker: %w", err)
	}
	return &Runtime{api: api, log: logger}, nil
}

// Close releases the underlying API client.
func (r *Runtime) Close() error { return r.api.Close() }

// CreateNetwork creates a bridge network for the run and returns its ID.
func (r *Runtime) CreateNetwork(ctx context.Context, name, runID string) (string, error) {
	resp, err := r.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{RunLabel: runID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return resp.ID, nil
}

// StartContainer creates and starts a long-lived container, then waits for
// it to report running.
func (r *Runtime) StartContainer(ctx context.Context, opts ContainerOpts) error {
	id, err := r.create(ctx, opts)
	if err != nil {
		return err
	}
	if err := r.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}
	return r.waitRunning(ctx, opts.Name, id, opts.startTimeout())
}

// RunOneShot creates and starts a container, waits for it to exit, and
// surfaces a non-zero exit as a RunError carrying the captured stderr.
func (r *Runtime) RunOneShot(ctx context.Context, opts ContainerOpts) error {
	id, err := r.create(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			r.log.Warn("failed to remove one-shot container", "container", opts.Name, "err", err)
		}
	}()

	waitCh, errCh := r.api.ContainerWait(ctx, id, container.WaitConditionNextExit)
	if err := r.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to wait for container %s: %w", opts.Name, err)
	case status := <-waitCh:
		if status.StatusCode != 0 {
			stderr := r.captureStderr(ctx, id)
			return &RunError{Image: opts.Image, ExitCode: int(status.StatusCode), Stderr: stderr}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveContainer stops (10s grace) and force-removes a container by name.
// Implements the registry's ContainerRemover.
func (r *Runtime) RemoveContainer(ctx context.Context, name string) error {
	timeoutSecs := 10
	if err := r.api.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeoutSecs}); err != nil {
		r.log.Warn("failed to stop container", "container", name, "err", err)
	}
	if err := r.api.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// DestroyRunResources removes every container and network labeled with the
// given run ID. Failures are logged and do not stop the sweep.
func (r *Runtime) DestroyRunResources(ctx context.Context, runID string) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", RunLabel, runID))

	containers, err := r.api.ContainerList(ctx, container.ListOptions{All: true, Filters: filter})
	if err != nil {
		r.log.Warn("failed to list run containers", "run", runID, "err", err)
	}
	for _, c := range containers {
		if err := r.RemoveContainer(ctx, c.ID); err != nil {
			r.log.Warn("failed to remove run container", "container", c.ID, "err", err)
		}
	}

	networks, err := r.api.NetworkList(ctx, network.ListOptions{Filters: filter})
	if err != nil {
		r.log.Warn("failed to list run networks", "run", runID, "err", err)
	}
	for _, n := range networks {
		if err := r.api.NetworkRemove(ctx, n.ID); err != nil {
			r.log.Warn("failed to remove run network", "network", n.Name, "err", err)
		}
	}
}

func (r *Runtime) create(ctx context.Context, opts ContainerOpts) (string, error) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for _, p := range opts.Ports {
		port, err := nat.NewPort("tcp", fmt.Sprintf("%d", p.ContainerPort))
		if err != nil {
			return "", fmt.Errorf("invalid container port %d: %w", p.ContainerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", p.HostPort)}}
	}

	binds := make([]string, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		spec := fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath)
		if m.ReadOnly {
			spec += ":ro"
		}
		binds = append(binds, spec)
	}

	config := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Env:          opts.Env,
		ExposedPorts: exposed,
		Labels:       map[string]string{RunLabel: opts.RunID},
	}
	hostConfig := &container.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
	}
	var netConfig *network.NetworkingConfig
	if opts.Network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				opts.Network: {},
			},
		}
	}

	resp, err := r.api.ContainerCreate(ctx, config, hostConfig, netConfig, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

// waitRunning polls the container status until it is running, it exits, or
// the timeout elapses.
func (r *Runtime) waitRunning(ctx context.Context, name, id string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for container %s to start", name)
		case <-ticker.C:
			info, err := r.api.ContainerInspect(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to inspect container %s: %w", name, err)
			}
			if info.State.Running {
				return nil
			}
			if info.State.Status == "exited" {
				return fmt.Errorf("container %s exited unexpectedly: %s", name, info.State.Error)
			}
		}
	}
}

func (r *Runtime) captureStderr(ctx context.Context, id string) string {
	logs, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: false, ShowStderr: true})
	if err != nil {
		return fmt.Sprintf("(failed to capture stderr: %v)", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return fmt.Sprintf("(failed to demux stderr: %v)", err)
	}
	return stderr.String()
}
