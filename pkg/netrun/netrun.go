// Package netrun tracks every resource belonging to one ephemeral devnet
// run: containers, processes, log files, port bindings and the privileged
// chain endpoints. A single Run instance is the source of truth for a run
// and is shared by reference with every other component.
package netrun

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// DeployMode selects how Cleanup treats containers that are still running.
type DeployMode int

const (
	// ModeLocal leaves containers running for operator inspection.
	ModeLocal DeployMode = iota
	// ModeEphemeral removes tracked containers on cleanup.
	ModeEphemeral
	// ModeKubernetes delegates container lifecycle to the cluster; cleanup
	// only releases local resources.
	ModeKubernetes
)

func (m DeployMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeEphemeral:
		return "ephemeral"
	case ModeKubernetes:
		return "kubernetes"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ContainerHandle records one launched container and its port bindings,
// keyed by label ("ws", "rpc", "http", ...).
type ContainerHandle struct {
	Name          string
	PublicPorts   map[string]int
	InternalPorts map[string]int
}

// Run is the resource registry for one devnet run. Mutating methods never
// fail; lookups by name fail loudly on miss. All methods are safe for
// concurrent use so node launches can be parallelized.
type Run struct {
	mu sync.Mutex

	id         string
	mode       DeployMode
	containers []*ContainerHandle
	byName     map[string]*ContainerHandle
	processes  []*os.Process
	logFiles   []*os.File
	relayers   map[string]struct{}

	primaryContainer string
	elEndpoint       string
	clEndpoint       string
	networkName      string
	networkID        string
	kubeNamespace    string
}

// New creates a registry for a fresh run. The generated run ID namespaces
// container and network names so concurrent runs never collide.
func New(mode DeployMode) *Run {
	return &Run{
		id:       uuid.NewString()[:8],
		mode:     mode,
		byName:   make(map[string]*ContainerHandle),
		relayers: make(map[string]struct{}),
	}
}

// ID returns the opaque run identifier.
func (r *Run) ID() string { return r.id }

// Mode returns the deployment mode chosen at construction.
func (r *Run) Mode() DeployMode { return r.mode }

// ScopedName prefixes name with the run ID, producing the container or
// docker-network name actually handed to the runtime.
func (r *Run) ScopedName(name string) string {
	return fmt.Sprintf("%s-%s", r.id, name)
}

// AddContainer registers a container handle. Registering the same name with
// different ports is a programming error; re-registering identical ports is
// a no-op.
func (r *Run) AddContainer(name string, publicPorts, internalPorts map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if !portsEqual(existing.PublicPorts, publicPorts) || !portsEqual(existing.InternalPorts, internalPorts) {
			return fmt.Errorf("container %q already registered with different ports", name)
		}
		return nil
	}
	h := &ContainerHandle{
		Name:          name,
		PublicPorts:   clonePorts(publicPorts),
		InternalPorts: clonePorts(internalPorts),
	}
	r.containers = append(r.containers, h)
	r.byName[name] = h
	return nil
}

// AddProcess tracks a directly spawned OS process.
func (r *Run) AddProcess(p *os.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes = append(r.processes, p)
}

// AddLogFile tracks a file used for process log redirection. The registry
// owns the file from this point on; no other component may close it.
func (r *Run) AddLogFile(f *os.File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logFiles = append(r.logFiles, f)
}

// RegisterRelayerKind records that a relayer of the given kind is active.
// Idempotent.
func (r *Run) RegisterRelayerKind(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relayers[kind] = struct{}{}
}

// ActiveRelayerKinds returns the registered relayer kinds, order unspecified.
func (r *Run) ActiveRelayerKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.relayers))
	for k := range r.relayers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Containers returns the registered handles in registration order.
func (r *Run) Containers() []*ContainerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ContainerHandle, len(r.containers))
	copy(out, r.containers)
	return out
}

// ContainerPort returns the public port registered under label for the named
// container. A miss is a hard error: callers use the port to build connection
// strings, and a sentinel would turn into a confusing downstream connection
// failure instead of a clear one.
func (r *Run) ContainerPort(name, label string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("container %q not found in run %s", name, r.id)
	}
	port, ok := h.PublicPorts[label]
	if !ok || port <= 0 {
		return 0, fmt.Errorf("container %q has no public %q port", name, label)
	}
	return port, nil
}

// SetPrimaryContainer marks the container whose ws port is the run's primary
// externally-reachable endpoint.
func (r *Run) SetPrimaryContainer(name string) error {
	if name == "" {
		return fmt.Errorf("primary container name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.primaryContainer != "" && r.primaryContainer != name {
		return fmt.Errorf("primary container already set to %q", r.primaryContainer)
	}
	r.primaryContainer = name
	return nil
}

// PrimaryWsPort returns the public "ws" port of the primary container. When
// no primary container was assigned it falls back to scanning registered
// containers for the first valid ws binding, preserving the historical
// single-node assumption; no match is an error.
func (r *Run) PrimaryWsPort() (int, error) {
	r.mu.Lock()
	primary := r.primaryContainer
	r.mu.Unlock()

	if primary != "" {
		return r.ContainerPort(primary, "ws")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.containers {
		if port, ok := h.PublicPorts["ws"]; ok && port > 0 {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no container in run %s exposes a public ws port", r.id)
}

// SetELEndpoint records the execution-layer RPC URL. Write-once.
func (r *Run) SetELEndpoint(url string) error {
	return r.setOnce(&r.elEndpoint, "execution endpoint", url)
}

// ELEndpoint fails if the endpoint was never assigned; callers must not
// silently proceed with an empty endpoint.
func (r *Run) ELEndpoint() (string, error) {
	return r.getRequired(&r.elEndpoint, "execution endpoint")
}

// SetCLEndpoint records the consensus-layer HTTP endpoint. Write-once.
func (r *Run) SetCLEndpoint(url string) error {
	return r.setOnce(&r.clEndpoint, "consensus endpoint", url)
}

// CLEndpoint fails if the endpoint was never assigned.
func (r *Run) CLEndpoint() (string, error) {
	return r.getRequired(&r.clEndpoint, "consensus endpoint")
}

// SetNetworkName records the docker network name for the run. Write-once.
func (r *Run) SetNetworkName(name string) error {
	return r.setOnce(&r.networkName, "network name", name)
}

// NetworkName fails if no network was created for this run.
func (r *Run) NetworkName() (string, error) {
	return r.getRequired(&r.networkName, "network name")
}

// SetNetworkID records the docker network ID. Write-once.
func (r *Run) SetNetworkID(id string) error {
	return r.setOnce(&r.networkID, "network id", id)
}

// NetworkID fails if no network was created for this run.
func (r *Run) NetworkID() (string, error) {
	return r.getRequired(&r.networkID, "network id")
}

// SetKubeNamespace records the Kubernetes namespace used by this run.
// Write-once.
func (r *Run) SetKubeNamespace(ns string) error {
	return r.setOnce(&r.kubeNamespace, "kube namespace", ns)
}

// KubeNamespace fails if the run does not target Kubernetes.
func (r *Run) KubeNamespace() (string, error) {
	return r.getRequired(&r.kubeNamespace, "kube namespace")
}

func (r *Run) setOnce(field *string, what, value string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", what)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if *field != "" {
		return fmt.Errorf("%s already set to %q", what, *field)
	}
	*field = value
	return nil
}

func (r *Run) getRequired(field *string, what string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *field == "" {
		return "", fmt.Errorf("%s not set for run %s", what, r.id)
	}
	return *field, nil
}

func clonePorts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func portsEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
