package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/internal/abis"
)

// SafeState is the multisignature wallet state the router consults before
// execution.
type SafeState struct {
	Address   common.Address
	Nonce     uint64
	Threshold uint64
	Owners    []common.Address
}

// IsOwner reports whether addr is one of the wallet owners.
func (s SafeState) IsOwner(addr common.Address) bool {
	for _, owner := range s.Owners {
		if owner == addr {
			return true
		}
	}

	return false
}

// SafeReader reads the current on-chain state of a Safe.
type SafeReader interface {
	SafeState(ctx context.Context, safe common.Address) (SafeState, error)
}

type safeReader struct {
	client OnchainClient
}

// NewSafeReader returns a SafeReader backed by the given chain client.
func NewSafeReader(client OnchainClient) SafeReader {
	return &safeReader{client: client}
}

func (r *safeReader) SafeState(ctx context.Context, safe common.Address) (SafeState, error) {
	nonce, err := r.callUint(ctx, safe, "nonce")
	if err != nil {
		return SafeState{}, fmt.Errorf("failed to read safe nonce: %w", err)
	}
	threshold, err := r.callUint(ctx, safe, "getThreshold")
	if err != nil {
		return SafeState{}, fmt.Errorf("failed to read safe threshold: %w", err)
	}

	data, err := abis.Safe.Pack("getOwners")
	if err != nil {
		return SafeState{}, err
	}
	ret, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil {
		return SafeState{}, fmt.Errorf("failed to read safe owners: %w", err)
	}
	unpacked, err := abis.Safe.Unpack("getOwners", ret)
	if err != nil {
		return SafeState{}, fmt.Errorf("failed to unpack safe owners: %w", err)
	}
	owners, ok := unpacked[0].([]common.Address)
	if !ok {
		return SafeState{}, fmt.Errorf("unexpected getOwners return type %T", unpacked[0])
	}

	return SafeState{
		Address:   safe,
		Nonce:     nonce,
		Threshold: threshold,
		Owners:    owners,
	}, nil
}

func (r *safeReader) callUint(ctx context.Context, safe common.Address, method string) (uint64, error) {
	data, err := abis.Safe.Pack(method)
	if err != nil {
		return 0, err
	}
	ret, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	unpacked, err := abis.Safe.Unpack(method, ret)
	if err != nil {
		return 0, err
	}
	v, ok := unpacked[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected %s return type %T", method, unpacked[0])
	}

	return v.Uint64(), nil
}
