// Package chain provides the narrow clients through which the orchestrator
// reaches the devnet's chains: an Ethereum execution-layer event source, a
// beacon-node HTTP client, and a Substrate solochain client. Both chains
// expose their events through the same push-based Source/Subscription shape
// so the correlator in pkg/watch stays chain-agnostic.
package chain

import "context"

// Event is one decoded chain event. Name is "Pallet.Event" on the solochain
// and "Contract.Event" on the execution layer. Fields hold the decoded
// arguments by name; Raw keeps the transport-level record for callers that
// need more than the decoded view.
type Event struct {
	Name   string
	Fields map[string]any
	Raw    any
}

// Subscription is a live event stream. Events are delivered in the order the
// underlying transport delivers them. Unsubscribe is safe to call more than
// once and must always be called; leaked subscriptions exhaust the chain
// client's connection pool over a test suite.
type Subscription interface {
	Events() <-chan Event
	Err() <-chan error
	Unsubscribe()
}

// Source opens event subscriptions by path. Path format is source-specific:
// "Contract.Event" for the execution layer, "Pallet.Event" for the
// solochain.
type Source interface {
	Subscribe(ctx context.Context, path string) (Subscription, error)
}
