package bootstrap

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostbridge/devnet/pkg/chain"
	"github.com/frostbridge/devnet/pkg/wait"
)

type fakeFinality struct {
	polls        int
	finalizeAt   int
	err          error
	lastWasFinal bool
}

func (f *fakeFinality) FinalityCheckpoints(ctx context.Context) (chain.FinalityCheckpoints, error) {
	f.polls++
	if f.err != nil {
		return chain.FinalityCheckpoints{}, f.err
	}
	out := chain.FinalityCheckpoints{}
	if f.polls >= f.finalizeAt {
		out.Finalized = chain.Checkpoint{Epoch: "2", Root: common.HexToHash("0xabc1")}
		f.lastWasFinal = true
	}
	return out, nil
}

type fakeGenerator struct {
	calls          int
	pollsAtCall    int
	fileWasPresent bool
	finality       *fakeFinality
	payload        string
	err            error
}

func (g *fakeGenerator) GenerateCheckpoint(ctx context.Context, relayConfigPath, outputPath string) error {
	g.calls++
	g.pollsAtCall = g.finality.polls
	if _, err := os.Stat(outputPath); err == nil {
		g.fileWasPresent = true
	}
	if g.err != nil {
		return g.err
	}
	return os.WriteFile(outputPath, []byte(g.payload), 0o644)
}

type fakeSubmitter struct {
	payload json.RawMessage
	err     error
}

func (s *fakeSubmitter) ForceCheckpoint(ctx context.Context, payload json.RawMessage) (chain.ExtrinsicReceipt, error) {
	s.payload = payload
	if s.err != nil {
		return chain.ExtrinsicReceipt{}, s.err
	}
	return chain.ExtrinsicReceipt{}, nil
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		FinalityAttempts: 10,
		FinalityInterval: time.Millisecond,
		RelayConfigPath:  filepath.Join(dir, "beacon-relay.json"),
		CheckpointPath:   filepath.Join(dir, "checkpoint.json"),
	}
}

const checkpointJSON = `{"header":{"slot":"64"},"current_sync_committee":{"pubkeys":["0x01"]},"validators_root":"0x02"}`

func TestSequencerHappyPath(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 1}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}
	submitter := &fakeSubmitter{}

	seq := NewSequencer(cfg, finality, generator, submitter, testLogger())
	require.NoError(t, seq.Run(context.Background()))

	// the payload is forwarded verbatim, byte for byte
	assert.Equal(t, checkpointJSON, string(submitter.payload))

	// the artifact only exists to cross the process boundary
	_, err := os.Stat(cfg.CheckpointPath)
	assert.True(t, os.IsNotExist(err), "checkpoint artifact must be deleted after decode")
}

func TestSequencerOrdering(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 3}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}
	submitter := &fakeSubmitter{}

	seq := NewSequencer(cfg, finality, generator, submitter, testLogger())
	require.NoError(t, seq.Run(context.Background()))

	// generation must never start while the reported root is the zero
	// sentinel: exactly 3 polls happen first
	assert.Equal(t, 3, finality.polls)
	assert.Equal(t, 1, generator.calls)
	assert.Equal(t, 3, generator.pollsAtCall)
	assert.True(t, finality.lastWasFinal)
}

func TestSequencerPreCreatesArtifactFile(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 1}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}

	seq := NewSequencer(cfg, finality, generator, &fakeSubmitter{}, testLogger())
	require.NoError(t, seq.Run(context.Background()))

	// the output file must exist before the generator container starts, or
	// the container runtime creates a directory at the mount path
	assert.True(t, generator.fileWasPresent)
}

func TestSequencerAbortsWhenFinalityNeverComes(t *testing.T) {
	cfg := testConfig(t)
	cfg.FinalityAttempts = 3
	finality := &fakeFinality{finalizeAt: 100}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}

	seq := NewSequencer(cfg, finality, generator, &fakeSubmitter{}, testLogger())
	err := seq.Run(context.Background())

	require.ErrorIs(t, err, wait.ErrAttemptsExhausted)
	assert.Contains(t, err.Error(), "bridge cannot be initialized")
	assert.Equal(t, 3, finality.polls)
	assert.Zero(t, generator.calls, "generation must not run without finality")
}

func TestSequencerCancellationIsNotReportedAsMissingFinality(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 100}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq := NewSequencer(cfg, finality, generator, &fakeSubmitter{}, testLogger())
	err := seq.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "never finalized")
	assert.Zero(t, generator.calls)
}

func TestSequencerGeneratorFailureIsNotRetried(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 1}
	generator := &fakeGenerator{finality: finality, err: os.ErrPermission}
	submitter := &fakeSubmitter{}

	seq := NewSequencer(cfg, finality, generator, submitter, testLogger())
	err := seq.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, generator.calls)
	assert.Nil(t, submitter.payload, "submission must not happen after a generation failure")
}

func TestSequencerRejectsMalformedArtifact(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 1}
	generator := &fakeGenerator{finality: finality, payload: "not json {"}

	seq := NewSequencer(cfg, finality, generator, &fakeSubmitter{}, testLogger())
	err := seq.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestSequencerSubmissionFailureCarriesStatus(t *testing.T) {
	cfg := testConfig(t)
	finality := &fakeFinality{finalizeAt: 1}
	generator := &fakeGenerator{finality: finality, payload: checkpointJSON}
	submitter := &fakeSubmitter{err: context.DeadlineExceeded}

	seq := NewSequencer(cfg, finality, generator, submitter, testLogger())
	err := seq.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "force checkpoint")
}
