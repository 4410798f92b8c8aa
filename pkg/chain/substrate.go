package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	regstate "github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"
)

// SolochainClient wraps the Substrate RPC API for the bridge solochain:
// pallet event subscriptions, storage queries, and sudo-wrapped extrinsic
// submission with finalization tracking.
type SolochainClient struct {
	api         *gsrpc.SubstrateAPI
	meta        *types.Metadata
	genesisHash types.Hash
	rv          *types.RuntimeVersion
	events      retriever.EventRetriever
}

// ExtrinsicReceipt reports where a finalized extrinsic landed.
type ExtrinsicReceipt struct {
	BlockHash     types.Hash
	ExtrinsicHash types.Hash
}

// DialSolochain connects to the solochain WebSocket endpoint and loads the
// chain metadata needed for call construction and event decoding.
func DialSolochain(endpoint string) (*SolochainClient, error) {
	api, err := gsrpc.NewSubstrateAPI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial solochain endpoint %s: %w", endpoint, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch solochain metadata: %w", err)
	}
	genesisHash, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch genesis hash: %w", err)
	}
	rv, err := api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runtime version: %w", err)
	}
	events, err := retriever.NewDefaultEventRetriever(regstate.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		return nil, fmt.Errorf("failed to create event retriever: %w", err)
	}
	return &SolochainClient{
		api:         api,
		meta:        meta,
		genesisHash: genesisHash,
		rv:          rv,
		events:      events,
	}, nil
}

// Metadata returns the chain metadata loaded at dial time.
func (c *SolochainClient) Metadata() *types.Metadata { return c.meta }

// QueryStorage reads a storage value under Pallet/item for the optional
// encoded key argument. Returns false when the value is absent.
func (c *SolochainClient) QueryStorage(pallet, item string, arg []byte, target any) (bool, error) {
	key, err := types.CreateStorageKey(c.meta, pallet, item, arg)
	if err != nil {
		return false, fmt.Errorf("failed to create storage key %s.%s: %w", pallet, item, err)
	}
	ok, err := c.api.RPC.State.GetStorageLatest(key, target)
	if err != nil {
		return false, fmt.Errorf("failed to query storage %s.%s: %w", pallet, item, err)
	}
	return ok, nil
}

// Subscribe opens a pallet event subscription for path ("Pallet.Event").
// It follows finalized heads and replays each block's decoded event records
// in chain order, forwarding the ones matching the requested pallet and
// event name.
func (c *SolochainClient) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if _, _, ok := strings.Cut(path, "."); !ok {
		return nil, fmt.Errorf("invalid event path %q, want Pallet.Event", path)
	}

	heads, err := c.api.RPC.Chain.SubscribeFinalizedHeads()
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to finalized heads: %w", err)
	}

	sub := &solochainSubscription{
		client: c,
		heads:  heads,
		events: make(chan Event),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go sub.run(path)
	return sub, nil
}

type headsSubscription interface {
	Chan() <-chan types.Header
	Err() <-chan error
	Unsubscribe()
}

type solochainSubscription struct {
	client *SolochainClient
	heads  headsSubscription
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *solochainSubscription) Events() <-chan Event { return s.events }
func (s *solochainSubscription) Err() <-chan error    { return s.errs }

func (s *solochainSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.heads.Unsubscribe()
		close(s.done)
	})
}

func (s *solochainSubscription) run(path string) {
	for {
		select {
		case <-s.done:
			return
		case err := <-s.heads.Err():
			if err != nil {
				select {
				case s.errs <- err:
				case <-s.done:
				}
			}
			return
		case head := <-s.heads.Chan():
			if err := s.emitBlockEvents(path, head); err != nil {
				select {
				case s.errs <- err:
				case <-s.done:
				}
				return
			}
		}
	}
}

func (s *solochainSubscription) emitBlockEvents(path string, head types.Header) error {
	blockHash, err := s.client.api.RPC.Chain.GetBlockHash(uint64(head.Number))
	if err != nil {
		return fmt.Errorf("failed to resolve hash for block %d: %w", head.Number, err)
	}
	records, err := s.client.events.GetEvents(blockHash)
	if err != nil {
		return fmt.Errorf("failed to retrieve events for block %d: %w", head.Number, err)
	}
	for _, record := range records {
		if record.Name != path {
			continue
		}
		fields := make(map[string]any, len(record.Fields))
		for i, f := range record.Fields {
			name := f.Name
			if name == "" {
				name = fmt.Sprintf("field_%d", i)
			}
			fields[name] = f.Value
		}
		ev := Event{Name: record.Name, Fields: fields, Raw: record}
		select {
		case s.events <- ev:
		case <-s.done:
			return nil
		}
	}
	return nil
}

// NewCall builds a runtime call for the loaded metadata.
func (c *SolochainClient) NewCall(method string, args ...any) (types.Call, error) {
	call, err := types.NewCall(c.meta, method, args...)
	if err != nil {
		return types.Call{}, fmt.Errorf("failed to build call %s: %w", method, err)
	}
	return call, nil
}

// SubmitSudo wraps call in Sudo.sudo, signs it with the given dev keypair,
// submits it, and blocks until the extrinsic is finalized or the chain
// reports a terminal failure status. ctx bounds the wait.
func (c *SolochainClient) SubmitSudo(ctx context.Context, call types.Call, keypair signature.KeyringPair) (ExtrinsicReceipt, error) {
	sudoCall, err := types.NewCall(c.meta, "Sudo.sudo", call)
	if err != nil {
		return ExtrinsicReceipt{}, fmt.Errorf("failed to build sudo call: %w", err)
	}

	nonce, err := c.accountNonce(keypair)
	if err != nil {
		return ExtrinsicReceipt{}, err
	}

	ext := types.NewExtrinsic(sudoCall)
	opts := types.SignatureOptions{
		BlockHash:          c.genesisHash,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        c.genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        c.rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: c.rv.TransactionVersion,
	}
	if err := ext.Sign(keypair, opts); err != nil {
		return ExtrinsicReceipt{}, fmt.Errorf("failed to sign extrinsic: %w", err)
	}
	extHash, err := extrinsicHash(ext)
	if err != nil {
		return ExtrinsicReceipt{}, err
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return ExtrinsicReceipt{}, fmt.Errorf("failed to submit extrinsic: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ExtrinsicReceipt{}, fmt.Errorf("gave up waiting for extrinsic finalization: %w", ctx.Err())
		case err := <-sub.Err():
			return ExtrinsicReceipt{}, fmt.Errorf("extrinsic status stream failed: %w", err)
		case status := <-sub.Chan():
			switch {
			case status.IsFinalized:
				return ExtrinsicReceipt{BlockHash: status.AsFinalized, ExtrinsicHash: extHash}, nil
			case status.IsDropped:
				return ExtrinsicReceipt{}, fmt.Errorf("extrinsic dropped")
			case status.IsUsurped:
				return ExtrinsicReceipt{}, fmt.Errorf("extrinsic usurped by %s", status.AsUsurped.Hex())
			case status.IsRetracted:
				return ExtrinsicReceipt{}, fmt.Errorf("extrinsic retracted in %s", status.AsRetracted.Hex())
			case status.IsInvalid:
				return ExtrinsicReceipt{}, fmt.Errorf("extrinsic invalid")
			}
		}
	}
}

// extrinsicHash is the hash the chain reports for ext: the blake2b-256
// digest of its SCALE encoding.
func extrinsicHash(ext types.Extrinsic) (types.Hash, error) {
	enc, err := codec.Encode(ext)
	if err != nil {
		return types.Hash{}, fmt.Errorf("failed to encode extrinsic: %w", err)
	}
	digest := blake2b.Sum256(enc)
	return types.NewHash(digest[:]), nil
}

func (c *SolochainClient) accountNonce(keypair signature.KeyringPair) (uint32, error) {
	key, err := types.CreateStorageKey(c.meta, "System", "Account", keypair.PublicKey)
	if err != nil {
		return 0, fmt.Errorf("failed to create account storage key: %w", err)
	}
	var info types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch account info: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint32(info.Nonce), nil
}
