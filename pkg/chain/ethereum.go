package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthereumSource subscribes to contract events on the execution layer over
// a WebSocket connection. Contracts must be registered with their ABI before
// their events can be watched; the subscription path is "Contract.Event"
// using the registered contract name.
type EthereumSource struct {
	client *ethclient.Client

	mu        sync.Mutex
	contracts map[string]registeredContract
}

type registeredContract struct {
	address common.Address
	abi     abi.ABI
}

// DialEthereum connects to the execution-layer WebSocket endpoint.
func DialEthereum(ctx context.Context, endpoint string) (*EthereumSource, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial execution endpoint %s: %w", endpoint, err)
	}
	return &EthereumSource{
		client:    client,
		contracts: make(map[string]registeredContract),
	}, nil
}

// Client exposes the underlying ethclient for direct reads.
func (s *EthereumSource) Client() *ethclient.Client { return s.client }

// Close tears down the underlying RPC connection.
func (s *EthereumSource) Close() { s.client.Close() }

// RegisterContract makes a deployed contract's events subscribable under
// name. abiJSON is the contract's ABI definition.
func (s *EthereumSource) RegisterContract(name string, address common.Address, abiJSON string) error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("failed to parse ABI for contract %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[name] = registeredContract{address: address, abi: parsed}
	return nil
}

// Subscribe opens a filtered log subscription for path ("Contract.Event").
// Events are decoded into named fields, indexed and non-indexed alike.
func (s *EthereumSource) Subscribe(ctx context.Context, path string) (Subscription, error) {
	contractName, eventName, ok := strings.Cut(path, ".")
	if !ok {
		return nil, fmt.Errorf("invalid event path %q, want Contract.Event", path)
	}

	s.mu.Lock()
	contract, found := s.contracts[contractName]
	s.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("contract %q not registered", contractName)
	}
	event, found := contract.abi.Events[eventName]
	if !found {
		return nil, fmt.Errorf("contract %q has no event %q", contractName, eventName)
	}

	logs := make(chan types.Log)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{contract.address},
		Topics:    [][]common.Hash{{event.ID}},
	}
	ethSub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s logs: %w", path, err)
	}

	sub := &ethSubscription{
		inner:  ethSub,
		events: make(chan Event),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go sub.run(path, contract.abi, event, logs)
	return sub, nil
}

type ethSubscription struct {
	inner  ethereum.Subscription
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func (s *ethSubscription) Events() <-chan Event { return s.events }
func (s *ethSubscription) Err() <-chan error    { return s.errs }

func (s *ethSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		close(s.done)
	})
}

func (s *ethSubscription) run(path string, contractABI abi.ABI, event abi.Event, logs chan types.Log) {
	for {
		select {
		case <-s.done:
			return
		case err := <-s.inner.Err():
			if err != nil {
				select {
				case s.errs <- err:
				case <-s.done:
				}
			}
			return
		case lg := <-logs:
			fields, err := decodeLog(contractABI, event, lg)
			if err != nil {
				select {
				case s.errs <- fmt.Errorf("failed to decode %s log: %w", path, err):
				case <-s.done:
				}
				return
			}
			ev := Event{Name: path, Fields: fields, Raw: lg}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func decodeLog(contractABI abi.ABI, event abi.Event, lg types.Log) (map[string]any, error) {
	fields := make(map[string]any)
	if err := contractABI.UnpackIntoMap(fields, event.Name, lg.Data); err != nil {
		return nil, err
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if len(lg.Topics) < len(indexed)+1 {
			return nil, fmt.Errorf("log has %d topics, want %d", len(lg.Topics), len(indexed)+1)
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return nil, err
		}
	}
	return fields, nil
}
