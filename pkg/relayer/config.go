package relayer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// BeaconConfig is the beacon relayer's config schema: it follows the
// consensus chain as its source and submits light-client updates to the
// solochain sink.
type BeaconConfig struct {
	Source BeaconSource `json:"source"`
	Sink   BeaconSink   `json:"sink"`
}

type BeaconSource struct {
	Beacon BeaconEndpoint `json:"beacon"`
}

type BeaconEndpoint struct {
	Endpoint           string          `json:"endpoint"`
	Datastore          BeaconDatastore `json:"datastore"`
	Spec               json.RawMessage `json:"spec,omitempty"`
	UpdateSlotInterval uint64          `json:"updateSlotInterval,omitempty"`
}

type BeaconDatastore struct {
	Location   string `json:"location"`
	MaxEntries uint64 `json:"maxEntries"`
}

type BeaconSink struct {
	Parachain ParachainSink `json:"parachain"`
}

type ParachainSink struct {
	Endpoint             string `json:"endpoint"`
	MaxWatchedExtrinsics uint64 `json:"maxWatchedExtrinsics,omitempty"`
}

// SetSourceEndpoint overwrites the consensus-chain endpoint.
func (c *BeaconConfig) SetSourceEndpoint(endpoint string) { c.Source.Beacon.Endpoint = endpoint }

// SetSinkEndpoint overwrites the solochain endpoint.
func (c *BeaconConfig) SetSinkEndpoint(endpoint string) { c.Sink.Parachain.Endpoint = endpoint }

func (c *BeaconConfig) validate(path string) error {
	if c.Source.Beacon.Endpoint == "" {
		return &ConfigError{Path: path, Field: "source.beacon.endpoint", Err: fmt.Errorf("missing")}
	}
	if c.Source.Beacon.Datastore.Location == "" {
		return &ConfigError{Path: path, Field: "source.beacon.datastore.location", Err: fmt.Errorf("missing")}
	}
	if c.Sink.Parachain.Endpoint == "" {
		return &ConfigError{Path: path, Field: "sink.parachain.endpoint", Err: fmt.Errorf("missing")}
	}
	return nil
}

// BeefyConfig is the beefy relayer's config schema: it follows the
// solochain's BEEFY commitments and submits them to the light-client
// contracts on the execution layer.
type BeefyConfig struct {
	Source BeefySource `json:"source"`
	Sink   BeefySink   `json:"sink"`
}

type BeefySource struct {
	Endpoint         string `json:"endpoint"`
	FastForwardDepth uint64 `json:"fast-forward-depth,omitempty"`
}

type BeefySink struct {
	Endpoint              string         `json:"endpoint"`
	GasLimit              uint64         `json:"gas-limit,omitempty"`
	DescendantsUntilFinal uint64         `json:"descendants-until-final,omitempty"`
	Contracts             BeefyContracts `json:"contracts"`
}

type BeefyContracts struct {
	BeefyClient common.Address `json:"BeefyClient"`
	Gateway     common.Address `json:"Gateway"`
}

// SetSourceEndpoint overwrites the solochain endpoint.
func (c *BeefyConfig) SetSourceEndpoint(endpoint string) { c.Source.Endpoint = endpoint }

// SetSinkEndpoint overwrites the execution-layer endpoint.
func (c *BeefyConfig) SetSinkEndpoint(endpoint string) { c.Sink.Endpoint = endpoint }

// SetContracts overwrites the deployed light-client contract addresses.
func (c *BeefyConfig) SetContracts(beefyClient, gateway common.Address) {
	c.Sink.Contracts.BeefyClient = beefyClient
	c.Sink.Contracts.Gateway = gateway
}

func (c *BeefyConfig) validate(path string) error {
	if c.Source.Endpoint == "" {
		return &ConfigError{Path: path, Field: "source.endpoint", Err: fmt.Errorf("missing")}
	}
	if c.Sink.Endpoint == "" {
		return &ConfigError{Path: path, Field: "sink.endpoint", Err: fmt.Errorf("missing")}
	}
	return nil
}

// LiveValues are the run-dependent values injected into a template. Only
// the fields relevant to the spec's kind are consulted.
type LiveValues struct {
	BeaconEndpoint     string
	SolochainEndpoint  string
	ExecutionEndpoint  string
	BeefyClientAddress common.Address
	GatewayAddress     common.Address
}

// Materialize reads the template at spec.TemplatePath, overwrites exactly
// the fields that depend on the live run, and writes the result to
// spec.OutputPath, replacing any previous file there. Re-materializing with
// the same inputs produces byte-identical output.
func Materialize(spec Spec, live LiveValues) (string, error) {
	raw, err := os.ReadFile(spec.TemplatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ConfigError{Path: spec.TemplatePath, Err: ErrTemplateNotFound}
		}
		return "", &ConfigError{Path: spec.TemplatePath, Err: err}
	}

	var out []byte
	switch spec.Kind {
	case KindBeacon:
		var cfg BeaconConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return "", &ConfigError{Path: spec.TemplatePath, Err: err}
		}
		cfg.SetSourceEndpoint(live.BeaconEndpoint)
		cfg.SetSinkEndpoint(live.SolochainEndpoint)
		if err := cfg.validate(spec.TemplatePath); err != nil {
			return "", err
		}
		out, err = encodeConfig(&cfg)
	case KindBeefy:
		var cfg BeefyConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return "", &ConfigError{Path: spec.TemplatePath, Err: err}
		}
		cfg.SetSourceEndpoint(live.SolochainEndpoint)
		cfg.SetSinkEndpoint(live.ExecutionEndpoint)
		cfg.SetContracts(live.BeefyClientAddress, live.GatewayAddress)
		if err := cfg.validate(spec.TemplatePath); err != nil {
			return "", err
		}
		out, err = encodeConfig(&cfg)
	default:
		return "", &ConfigError{Path: spec.TemplatePath, Err: fmt.Errorf("no schema for relayer kind %q", spec.Kind)}
	}
	if err != nil {
		return "", &ConfigError{Path: spec.TemplatePath, Err: err}
	}

	if err := os.WriteFile(spec.OutputPath, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write relayer config %s: %w", spec.OutputPath, err)
	}
	return spec.OutputPath, nil
}

// decodeStrict rejects fields outside the schema so a typoed template fails
// here instead of feeding zero values into a running relayer.
func decodeStrict(raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}

func encodeConfig(cfg any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}
