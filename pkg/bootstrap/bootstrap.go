// Package bootstrap initializes the bridge between the two chains: it
// waits for the consensus chain to finalize, exports that finality as a
// checkpoint artifact, and forces the checkpoint into the solochain's
// light client with a sudo call. Bridging cannot begin before this
// sequence completes.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/frostbridge/devnet/pkg/chain"
	"github.com/frostbridge/devnet/pkg/wait"
)

// FinalityClient reports the consensus chain's finality checkpoints.
// Implemented by chain.BeaconClient.
type FinalityClient interface {
	FinalityCheckpoints(ctx context.Context) (chain.FinalityCheckpoints, error)
}

// Generator produces the checkpoint artifact by running the external
// relayer binary in "dump checkpoint" mode.
type Generator interface {
	GenerateCheckpoint(ctx context.Context, relayConfigPath, outputPath string) error
}

// Submitter forces a checkpoint payload into the solochain's light client
// via a sudo-wrapped extrinsic and waits for its finalization. Implemented
// by chain.SudoSubmitter.
type Submitter interface {
	ForceCheckpoint(ctx context.Context, payload json.RawMessage) (chain.ExtrinsicReceipt, error)
}

// Config carries the sequencing tunables.
type Config struct {
	// FinalityAttempts and FinalityInterval bound the only retried step.
	FinalityAttempts int
	FinalityInterval time.Duration
	// RelayConfigPath is the already-materialized beacon relay config the
	// generator container mounts read-only.
	RelayConfigPath string
	// CheckpointPath is where the generator writes the artifact. The file
	// is transient: parsed, submitted, then deleted.
	CheckpointPath string
}

// Sequencer runs the bridge bootstrap pipeline. The steps are strictly
// sequential; only the finality wait is retried, and the first fatal error
// aborts the whole sequence. Resources stay up for inspection, teardown is
// a separate call.
type Sequencer struct {
	cfg       Config
	finality  FinalityClient
	generator Generator
	submitter Submitter
	log       log.Logger
}

// NewSequencer wires the sequencer's collaborators.
func NewSequencer(cfg Config, finality FinalityClient, generator Generator, submitter Submitter, logger log.Logger) *Sequencer {
	return &Sequencer{
		cfg:       cfg,
		finality:  finality,
		generator: generator,
		submitter: submitter,
		log:       logger,
	}
}

// Run executes the bootstrap pipeline.
func (s *Sequencer) Run(ctx context.Context) error {
	if err := s.awaitFinality(ctx); err != nil {
		if errors.Is(err, wait.ErrAttemptsExhausted) {
			return fmt.Errorf("bridge cannot be initialized, consensus chain never finalized: %w", err)
		}
		return fmt.Errorf("finality wait aborted: %w", err)
	}

	checkpoint, err := s.generateCheckpoint(ctx)
	if err != nil {
		return err
	}

	receipt, err := s.submitter.ForceCheckpoint(ctx, checkpoint)
	if err != nil {
		return fmt.Errorf("failed to force checkpoint on solochain: %w", err)
	}
	s.log.Info("checkpoint forced on solochain",
		"block", receipt.BlockHash.Hex(), "extrinsic", receipt.ExtrinsicHash.Hex())
	return nil
}

// awaitFinality polls the finality-checkpoints endpoint until the finalized
// root is present and is not the all-zero sentinel.
func (s *Sequencer) awaitFinality(ctx context.Context) error {
	s.log.Info("waiting for consensus chain finality",
		"attempts", s.cfg.FinalityAttempts, "interval", s.cfg.FinalityInterval)
	return wait.For(ctx, func(ctx context.Context) (bool, error) {
		checkpoints, err := s.finality.FinalityCheckpoints(ctx)
		if err != nil {
			return false, err
		}
		if checkpoints.Finalized.Root == (common.Hash{}) {
			s.log.Debug("consensus chain not yet finalized")
			return false, nil
		}
		s.log.Info("consensus chain finalized",
			"root", checkpoints.Finalized.Root.Hex(), "epoch", checkpoints.Finalized.Epoch)
		return true, nil
	}, s.cfg.FinalityAttempts, s.cfg.FinalityInterval)
}

// generateCheckpoint runs the external generator and parses its artifact.
// The empty output file is pre-created before the container starts;
// otherwise the container runtime creates a directory at the mount path and
// the generator fails writing into it. The artifact only exists to cross
// the process boundary and is removed after a successful decode.
func (s *Sequencer) generateCheckpoint(ctx context.Context) (json.RawMessage, error) {
	if err := os.WriteFile(s.cfg.CheckpointPath, nil, 0o644); err != nil {
		return nil, fmt.Errorf("failed to pre-create checkpoint file %s: %w", s.cfg.CheckpointPath, err)
	}

	if err := s.generator.GenerateCheckpoint(ctx, s.cfg.RelayConfigPath, s.cfg.CheckpointPath); err != nil {
		return nil, fmt.Errorf("checkpoint generation failed: %w", err)
	}

	raw, err := os.ReadFile(s.cfg.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint artifact %s: %w", s.cfg.CheckpointPath, err)
	}
	// the payload stays opaque, but it must be well-formed JSON before it
	// is forwarded into a transaction argument
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("checkpoint artifact %s is not valid JSON: %w", s.cfg.CheckpointPath, err)
	}

	if err := os.Remove(s.cfg.CheckpointPath); err != nil {
		s.log.Warn("failed to remove checkpoint artifact", "path", s.cfg.CheckpointPath, "err", err)
	}
	return json.RawMessage(raw), nil
}
