package bootstrap

import (
	"context"
	"fmt"

	"github.com/frostbridge/devnet/pkg/dockerutil"
)

const (
	containerConfigPath     = "/config/beacon-relay.json"
	containerCheckpointPath = "/checkpoint.json"
)

// ContainerGenerator runs the checkpoint-generator binary inside a
// throwaway container: relay config mounted read-only, the pre-created
// artifact file mounted read-write.
type ContainerGenerator struct {
	Runtime *dockerutil.Runtime
	// Image is the relayer image carrying the generator binary.
	Image string
	// Binary is the generator entrypoint inside the image.
	Binary string
	// RunID namespaces the throwaway container.
	RunID string
	// Network optionally attaches the container to the run's network so it
	// can reach the beacon node by service name.
	Network string
}

// GenerateCheckpoint implements Generator.
func (g *ContainerGenerator) GenerateCheckpoint(ctx context.Context, relayConfigPath, outputPath string) error {
	return g.Runtime.RunOneShot(ctx, dockerutil.ContainerOpts{
		Name:  fmt.Sprintf("%s-checkpoint-export", g.RunID),
		Image: g.Image,
		Cmd: []string{
			g.Binary,
			"--config", containerConfigPath,
			"--export-json",
			"--export-json-path", containerCheckpointPath,
		},
		Mounts: []dockerutil.Mount{
			{HostPath: relayConfigPath, ContainerPath: containerConfigPath, ReadOnly: true},
			{HostPath: outputPath, ContainerPath: containerCheckpointPath},
		},
		Network: g.Network,
		RunID:   g.RunID,
	})
}
