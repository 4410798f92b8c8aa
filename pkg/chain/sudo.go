package chain

import (
	"context"
	"encoding/json"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// SudoSubmitter binds a solochain client to one privileged runtime call and
// a well-known dev signing key. The bootstrap sequencer uses it to force
// the beacon checkpoint into the light-client pallet.
type SudoSubmitter struct {
	Client *SolochainClient
	// Method is the privileged call, e.g. "EthereumBeaconClient.force_checkpoint".
	Method string
	// Keypair is the pre-funded dev key authorized for sudo.
	Keypair signature.KeyringPair
}

// ForceCheckpoint submits the opaque checkpoint payload through Sudo.sudo
// and waits for the extrinsic to finalize. The payload is forwarded
// verbatim as the call argument.
func (s *SudoSubmitter) ForceCheckpoint(ctx context.Context, payload json.RawMessage) (ExtrinsicReceipt, error) {
	call, err := s.Client.NewCall(s.Method, types.NewBytes(payload))
	if err != nil {
		return ExtrinsicReceipt{}, err
	}
	return s.Client.SubmitSudo(ctx, call, s.Keypair)
}
