package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const finalityCheckpointsPath = "/eth/v1/beacon/states/head/finality_checkpoints"

// Checkpoint is one consensus checkpoint as reported by the beacon API.
type Checkpoint struct {
	Epoch string      `json:"epoch"`
	Root  common.Hash `json:"root"`
}

// FinalityCheckpoints is the beacon node's view of justification and
// finality for the head state.
type FinalityCheckpoints struct {
	PreviousJustified Checkpoint `json:"previous_justified"`
	CurrentJustified  Checkpoint `json:"current_justified"`
	Finalized         Checkpoint `json:"finalized"`
}

// BeaconClient is a thin wrapper over the subset of the beacon APIs the
// bootstrap sequencer needs.
type BeaconClient struct {
	endpoint string
	client   *http.Client
}

// NewBeaconClient creates a client for the consensus-layer HTTP endpoint.
func NewBeaconClient(endpoint string) *BeaconClient {
	return &BeaconClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// FinalityCheckpoints fetches the head state's finality checkpoints. The
// finalized root is the all-zero hash until the chain has finalized its
// first epoch.
func (c *BeaconClient) FinalityCheckpoints(ctx context.Context) (FinalityCheckpoints, error) {
	var out FinalityCheckpoints

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+finalityCheckpointsPath, nil)
	if err != nil {
		return out, fmt.Errorf("failed to build finality checkpoints request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("failed to fetch finality checkpoints: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return out, fmt.Errorf("finality checkpoints request returned %d: %s", resp.StatusCode, string(body))
	}

	var wrapper struct {
		Data FinalityCheckpoints `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return out, fmt.Errorf("failed to decode finality checkpoints: %w", err)
	}
	return wrapper.Data, nil
}
