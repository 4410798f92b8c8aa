package launch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/frostbridge/devnet/pkg/dockerutil"
	"github.com/frostbridge/devnet/pkg/netrun"
)

// ContainerStarter is the slice of the docker runtime the launcher needs.
type ContainerStarter interface {
	CreateNetwork(ctx context.Context, name, runID string) (string, error)
	StartContainer(ctx context.Context, opts dockerutil.ContainerOpts) error
}

// Launcher starts a topology's containers and registers every resource in
// the run.
type Launcher struct {
	Runtime ContainerStarter
	Log     log.Logger
}

// Up creates the run's network, starts every node, and assigns the run's
// endpoints from the execution/consensus node port bindings.
func (l *Launcher) Up(ctx context.Context, run *netrun.Run, topo *Topology) error {
	networkName := run.ScopedName(topo.Name)
	networkID, err := l.Runtime.CreateNetwork(ctx, networkName, run.ID())
	if err != nil {
		return err
	}
	if err := run.SetNetworkName(networkName); err != nil {
		return err
	}
	if err := run.SetNetworkID(networkID); err != nil {
		return err
	}

	for _, node := range topo.Nodes {
		if err := l.startNode(ctx, run, networkName, node); err != nil {
			return fmt.Errorf("failed to launch node %s: %w", node.Name, err)
		}
	}

	if topo.Primary != "" {
		if err := run.SetPrimaryContainer(topo.Primary); err != nil {
			return err
		}
	}
	return l.assignEndpoints(run, topo)
}

func (l *Launcher) startNode(ctx context.Context, run *netrun.Run, networkName string, node NodeSpec) error {
	publicPorts := make(map[string]int, len(node.Ports))
	internalPorts := make(map[string]int, len(node.Ports))
	bindings := make([]dockerutil.PortBinding, 0, len(node.Ports))
	for _, p := range node.Ports {
		publicPorts[p.Label] = p.Host
		internalPorts[p.Label] = p.Container
		bindings = append(bindings, dockerutil.PortBinding{
			Label:         p.Label,
			ContainerPort: p.Container,
			HostPort:      p.Host,
		})
	}

	env := make([]string, 0, len(node.Env))
	for k, v := range node.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)

	l.Log.Info("starting node", "node", node.Name, "image", node.Image, "role", node.Role)
	if err := l.Runtime.StartContainer(ctx, dockerutil.ContainerOpts{
		Name:         run.ScopedName(node.Name),
		Image:        node.Image,
		Cmd:          node.Command,
		Env:          env,
		Ports:        bindings,
		Network:      networkName,
		RunID:        run.ID(),
		StartTimeout: time.Duration(node.StartTimeout),
	}); err != nil {
		return err
	}
	return run.AddContainer(node.Name, publicPorts, internalPorts)
}

// assignEndpoints derives the run's EL and CL endpoints from the first
// execution node's ws port and the first consensus node's http port.
func (l *Launcher) assignEndpoints(run *netrun.Run, topo *Topology) error {
	for _, node := range topo.Nodes {
		switch node.Role {
		case RoleExecution:
			if _, err := run.ELEndpoint(); err == nil {
				continue
			}
			port, err := run.ContainerPort(node.Name, "ws")
			if err != nil {
				return fmt.Errorf("execution node %s: %w", node.Name, err)
			}
			if err := run.SetELEndpoint(fmt.Sprintf("ws://127.0.0.1:%d", port)); err != nil {
				return err
			}
		case RoleConsensus:
			if _, err := run.CLEndpoint(); err == nil {
				continue
			}
			port, err := run.ContainerPort(node.Name, "http")
			if err != nil {
				return fmt.Errorf("consensus node %s: %w", node.Name, err)
			}
			if err := run.SetCLEndpoint(fmt.Sprintf("http://127.0.0.1:%d", port)); err != nil {
				return err
			}
		}
	}
	return nil
}
