// Package launch reads a devnet topology definition and brings its
// containers up, recording everything in the run's resource registry.
package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultNetwork is used when the NETWORK environment variable is unset.
const DefaultNetwork = "anvil"

// Role describes what a node contributes to the devnet.
type Role string

const (
	RoleExecution Role = "execution"
	RoleConsensus Role = "consensus"
	RoleSolochain Role = "solochain"
	RoleSupport   Role = "support"
)

// Duration unmarshals YAML values like "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PortSpec maps one container port to a host port under a label.
type PortSpec struct {
	Label     string `yaml:"label"`
	Container int    `yaml:"container"`
	Host      int    `yaml:"host"`
}

// NodeSpec is one container in the topology.
type NodeSpec struct {
	Name    string            `yaml:"name"`
	Image   string            `yaml:"image"`
	Role    Role              `yaml:"role"`
	Command []string          `yaml:"command,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Ports   []PortSpec        `yaml:"ports,omitempty"`
	// StartTimeout bounds the wait for the container to report running.
	// Zero uses the runtime default.
	StartTimeout Duration `yaml:"startTimeout,omitempty"`
}

// Topology is a named devnet layout, one YAML file per deployment
// environment.
type Topology struct {
	Name string `yaml:"name"`
	// Primary names the node whose ws port is the run's primary endpoint.
	Primary string     `yaml:"primary,omitempty"`
	Nodes   []NodeSpec `yaml:"nodes"`
}

// SelectedNetwork returns the deployment environment chosen via the
// NETWORK environment variable.
func SelectedNetwork() string {
	if network := os.Getenv("NETWORK"); network != "" {
		return network
	}
	return DefaultNetwork
}

// TopologyPath resolves the topology file for the selected network inside
// configDir.
func TopologyPath(configDir string) string {
	return filepath.Join(configDir, SelectedNetwork()+".yaml")
}

// LoadTopology reads and validates a topology file.
func LoadTopology(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology %s: %w", path, err)
	}
	var topo Topology
	if err := yaml.Unmarshal(raw, &topo); err != nil {
		return nil, fmt.Errorf("failed to parse topology %s: %w", path, err)
	}
	if len(topo.Nodes) == 0 {
		return nil, fmt.Errorf("topology %s declares no nodes", path)
	}
	seen := make(map[string]struct{}, len(topo.Nodes))
	for _, node := range topo.Nodes {
		if node.Name == "" || node.Image == "" {
			return nil, fmt.Errorf("topology %s: every node needs a name and image", path)
		}
		if _, dup := seen[node.Name]; dup {
			return nil, fmt.Errorf("topology %s: duplicate node %q", path, node.Name)
		}
		seen[node.Name] = struct{}{}
	}
	return &topo, nil
}
