package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/frostbridge/devnet/pkg/bootstrap"
	"github.com/frostbridge/devnet/pkg/chain"
	"github.com/frostbridge/devnet/pkg/dockerutil"
	"github.com/frostbridge/devnet/pkg/launch"
	"github.com/frostbridge/devnet/pkg/netrun"
	"github.com/frostbridge/devnet/pkg/relayer"
	"github.com/frostbridge/devnet/pkg/shell"
)

func main() {
	logger := log.NewLogger(log.NewTerminalHandler(os.Stderr, true))

	app := &cli.App{
		Name:  "devnet",
		Usage: "ephemeral cross-chain bridge test network orchestrator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Usage:   "directory holding topology and relayer template files",
				Value:   "config",
				EnvVars: []string{"DEVNET_CONFIG_DIR"},
			},
			&cli.StringFlag{
				Name:    "mode",
				Usage:   "deployment mode: local, ephemeral or kubernetes",
				Value:   "local",
				EnvVars: []string{"DEVNET_MODE"},
			},
		},
		Commands: []*cli.Command{
			upCommand(logger),
			bootstrapCommand(logger),
			downCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Crit("devnet failed", "err", err)
	}
}

func parseMode(s string) (netrun.DeployMode, error) {
	switch s {
	case "local":
		return netrun.ModeLocal, nil
	case "ephemeral":
		return netrun.ModeEphemeral, nil
	case "kubernetes":
		return netrun.ModeKubernetes, nil
	default:
		return 0, fmt.Errorf("unknown deployment mode %q", s)
	}
}

func upCommand(logger log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "launch the devnet topology selected by the NETWORK env var",
		Action: func(c *cli.Context) error {
			mode, err := parseMode(c.String("mode"))
			if err != nil {
				return err
			}
			if err := shell.CheckInstalled("docker"); err != nil {
				return err
			}

			topo, err := launch.LoadTopology(launch.TopologyPath(c.String("config-dir")))
			if err != nil {
				return err
			}

			runtime, err := dockerutil.NewRuntime(c.Context, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			run := netrun.New(mode)
			logger.Info("launching devnet", "run", run.ID(), "network", launch.SelectedNetwork(), "mode", mode)

			launcher := &launch.Launcher{Runtime: runtime, Log: logger}
			if err := launcher.Up(c.Context, run, topo); err != nil {
				// leave whatever came up in place for diagnosis; explicit
				// teardown is `devnet down --run <id>`
				logger.Error("devnet launch failed, resources left for inspection", "run", run.ID())
				return err
			}

			el, _ := run.ELEndpoint()
			cl, _ := run.CLEndpoint()
			logger.Info("devnet is up", "run", run.ID(), "el", el, "cl", cl)
			return nil
		},
	}
}

func bootstrapCommand(logger log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "bootstrap",
		Usage: "initialize the bridge once both chains are up",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run", Usage: "run id to bootstrap", Required: true},
			&cli.StringFlag{Name: "cl", Usage: "consensus-layer HTTP endpoint", Required: true},
			&cli.StringFlag{Name: "solochain", Usage: "solochain WebSocket endpoint", Required: true},
			&cli.StringFlag{Name: "beacon-endpoint", Usage: "beacon endpoint as reachable from inside the run network"},
			&cli.StringFlag{Name: "relayer-image", Value: "frostbridge/relayer:latest"},
			&cli.StringFlag{Name: "network", Usage: "docker network to attach the checkpoint generator to"},
			&cli.StringFlag{Name: "sudo-seed", Value: "//Alice", EnvVars: []string{"DEVNET_SUDO_SEED"}},
			&cli.IntFlag{Name: "finality-attempts", Value: 60},
			&cli.DurationFlag{Name: "finality-interval", Value: 10 * time.Second},
		},
		Action: func(c *cli.Context) error {
			runtime, err := dockerutil.NewRuntime(c.Context, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			workDir, err := os.MkdirTemp("", fmt.Sprintf("devnet-%s-*", c.String("run")))
			if err != nil {
				return fmt.Errorf("failed to create work directory: %w", err)
			}

			beaconEndpoint := c.String("beacon-endpoint")
			if beaconEndpoint == "" {
				beaconEndpoint = c.String("cl")
			}
			relayConfig, err := relayer.Materialize(relayer.Spec{
				Name:         "beacon",
				Kind:         relayer.KindBeacon,
				TemplatePath: filepath.Join(c.String("config-dir"), "beacon-relay.json"),
				OutputPath:   filepath.Join(workDir, "beacon-relay.json"),
			}, relayer.LiveValues{
				BeaconEndpoint:    beaconEndpoint,
				SolochainEndpoint: c.String("solochain"),
			})
			if err != nil {
				return err
			}

			solochain, err := chain.DialSolochain(c.String("solochain"))
			if err != nil {
				return err
			}
			keypair, err := signature.KeyringPairFromSecret(c.String("sudo-seed"), 42)
			if err != nil {
				return fmt.Errorf("failed to derive sudo keypair: %w", err)
			}

			seq := bootstrap.NewSequencer(
				bootstrap.Config{
					FinalityAttempts: c.Int("finality-attempts"),
					FinalityInterval: c.Duration("finality-interval"),
					RelayConfigPath:  relayConfig,
					CheckpointPath:   filepath.Join(workDir, "checkpoint.json"),
				},
				chain.NewBeaconClient(c.String("cl")),
				&bootstrap.ContainerGenerator{
					Runtime: runtime,
					Image:   c.String("relayer-image"),
					Binary:  "generate-beacon-checkpoint",
					RunID:   c.String("run"),
					Network: c.String("network"),
				},
				&chain.SudoSubmitter{
					Client:  solochain,
					Method:  "EthereumBeaconClient.force_checkpoint",
					Keypair: keypair,
				},
				logger,
			)
			if err := seq.Run(c.Context); err != nil {
				return err
			}

			// confirm the forced checkpoint actually landed
			var finalizedRoot types.H256
			ok, err := solochain.QueryStorage("EthereumBeaconClient", "LatestFinalizedBlockRoot", nil, &finalizedRoot)
			if err != nil {
				return fmt.Errorf("failed to read back light client state: %w", err)
			}
			if !ok {
				return fmt.Errorf("light client reports no finalized root after bootstrap")
			}
			logger.Info("light client initialized", "finalizedRoot", finalizedRoot.Hex())
			return nil
		},
	}
}

func downCommand(logger log.Logger) *cli.Command {
	return &cli.Command{
		Name:  "down",
		Usage: "destroy every container and network belonging to a run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run", Usage: "run id to tear down", Required: true},
		},
		Action: func(c *cli.Context) error {
			runtime, err := dockerutil.NewRuntime(c.Context, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			logger.Info("destroying run resources", "run", c.String("run"))
			runtime.DestroyRunResources(c.Context, c.String("run"))
			return nil
		},
	}
}
