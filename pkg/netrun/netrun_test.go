package netrun

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestRunIDsAreUnique(t *testing.T) {
	a := New(ModeLocal)
	b := New(ModeLocal)
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
	assert.Contains(t, a.ScopedName("execution-node"), a.ID())
}

func TestContainerPortLookup(t *testing.T) {
	r := New(ModeLocal)
	require.NoError(t, r.AddContainer("x", map[string]int{"ws": 9944, "rpc": 9933}, map[string]int{"ws": 9944}))

	port, err := r.ContainerPort("x", "ws")
	require.NoError(t, err)
	assert.Equal(t, 9944, port)

	_, err = r.ContainerPort("missing", "ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = r.ContainerPort("x", "metrics")
	require.Error(t, err)
}

func TestContainerReregistration(t *testing.T) {
	r := New(ModeLocal)
	ports := map[string]int{"ws": 9944}
	require.NoError(t, r.AddContainer("x", ports, nil))
	// same ports: no-op
	require.NoError(t, r.AddContainer("x", map[string]int{"ws": 9944}, nil))
	// different ports: rejected
	err := r.AddContainer("x", map[string]int{"ws": 9999}, nil)
	require.Error(t, err)

	// and the original registration is untouched
	port, err := r.ContainerPort("x", "ws")
	require.NoError(t, err)
	assert.Equal(t, 9944, port)
}

func TestRelayerKindIdempotence(t *testing.T) {
	r := New(ModeLocal)
	r.RegisterRelayerKind("beefy")
	r.RegisterRelayerKind("beefy")
	r.RegisterRelayerKind("beacon")
	assert.ElementsMatch(t, []string{"beefy", "beacon"}, r.ActiveRelayerKinds())
}

func TestEndpointsAreWriteOnce(t *testing.T) {
	r := New(ModeLocal)

	_, err := r.ELEndpoint()
	require.Error(t, err, "reading before the first write must fail fast")

	require.NoError(t, r.SetELEndpoint("ws://127.0.0.1:8546"))
	require.Error(t, r.SetELEndpoint("ws://127.0.0.1:9999"))
	ep, err := r.ELEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8546", ep)

	require.Error(t, r.SetCLEndpoint(""))
	_, err = r.CLEndpoint()
	require.Error(t, err)
}

func TestIdentifierSettersRejectEmpty(t *testing.T) {
	r := New(ModeKubernetes)
	require.Error(t, r.SetNetworkName(""))
	require.Error(t, r.SetNetworkID(""))
	require.Error(t, r.SetKubeNamespace(""))

	require.NoError(t, r.SetKubeNamespace("devnet-tests"))
	ns, err := r.KubeNamespace()
	require.NoError(t, err)
	assert.Equal(t, "devnet-tests", ns)
}

func TestPrimaryWsPort(t *testing.T) {
	r := New(ModeLocal)
	require.NoError(t, r.AddContainer("relaychain", map[string]int{"rpc": 9933}, nil))
	require.NoError(t, r.AddContainer("solochain", map[string]int{"ws": 11144}, nil))

	// scan fallback finds the single exposed ws port
	port, err := r.PrimaryWsPort()
	require.NoError(t, err)
	assert.Equal(t, 11144, port)

	// explicit assignment takes precedence over the scan
	require.NoError(t, r.AddContainer("solochain-2", map[string]int{"ws": 11155}, nil))
	require.NoError(t, r.SetPrimaryContainer("solochain-2"))
	port, err = r.PrimaryWsPort()
	require.NoError(t, err)
	assert.Equal(t, 11155, port)
}

func TestPrimaryWsPortNoMatch(t *testing.T) {
	r := New(ModeLocal)
	require.NoError(t, r.AddContainer("relaychain", map[string]int{"rpc": 9933}, nil))
	_, err := r.PrimaryWsPort()
	require.Error(t, err)
}

type fakeRemover struct {
	removed []string
	fail    map[string]error
}

func (f *fakeRemover) RemoveContainer(_ context.Context, name string) error {
	if err := f.fail[name]; err != nil {
		return err
	}
	f.removed = append(f.removed, name)
	return nil
}

func TestCleanupIsIdempotent(t *testing.T) {
	r := New(ModeEphemeral)
	require.NoError(t, r.AddContainer("execution-node", map[string]int{"ws": 8546}, nil))

	f, err := os.Create(filepath.Join(t.TempDir(), "relayer.log"))
	require.NoError(t, err)
	r.AddLogFile(f)

	remover := &fakeRemover{}
	r.Cleanup(context.Background(), testLogger(), remover)
	require.Len(t, remover.removed, 1)

	// second call must not panic and must be a no-op for released resources
	r.Cleanup(context.Background(), testLogger(), remover)
	require.Len(t, remover.removed, 1)
}

func TestCleanupContinuesPastFailures(t *testing.T) {
	r := New(ModeEphemeral)
	require.NoError(t, r.AddContainer("a", map[string]int{"ws": 1}, nil))
	require.NoError(t, r.AddContainer("b", map[string]int{"ws": 2}, nil))

	remover := &fakeRemover{fail: map[string]error{
		r.ScopedName("a"): fmt.Errorf("daemon unreachable"),
	}}
	// must not panic or abort on the first failure
	r.Cleanup(context.Background(), testLogger(), remover)
	assert.Equal(t, []string{r.ScopedName("b")}, remover.removed)
}

func TestCleanupLocalModeLeavesContainers(t *testing.T) {
	r := New(ModeLocal)
	require.NoError(t, r.AddContainer("execution-node", map[string]int{"ws": 8546}, nil))

	remover := &fakeRemover{}
	r.Cleanup(context.Background(), testLogger(), remover)
	assert.Empty(t, remover.removed, "local-dev containers are left running for inspection")
}

func TestCleanupKillsTrackedProcesses(t *testing.T) {
	r := New(ModeEphemeral)

	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	r.AddProcess(cmd.Process)

	r.Cleanup(context.Background(), testLogger(), &fakeRemover{})

	err := cmd.Wait()
	require.Error(t, err, "tracked process must be killed by cleanup")
	assert.Contains(t, err.Error(), "killed")

	// already-reaped processes must not fail a second cleanup
	r.AddProcess(cmd.Process)
	r.Cleanup(context.Background(), testLogger(), &fakeRemover{})
}

func TestCleanupLocalModeLeavesProcesses(t *testing.T) {
	r := New(ModeLocal)

	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	r.AddProcess(cmd.Process)

	r.Cleanup(context.Background(), testLogger(), &fakeRemover{})

	require.NoError(t, cmd.Process.Signal(syscall.Signal(0)), "local-dev processes are left running for inspection")

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()
}
