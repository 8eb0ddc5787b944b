package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrSimulationUnavailable indicates the node could not perform the dry run
// at all (transport failure, node error). It is distinct from a revert, which
// carries the revert data instead.
var ErrSimulationUnavailable = errors.New("simulation unavailable")

// RevertError is returned by Simulate when the simulated call reverted. Data
// holds the raw revert bytes for selector-based decoding by the caller.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	return "execution reverted"
}

// Simulate performs a zero-state-change eth_call of msg against the latest
// block. A successful call returns the return data. A revert is reported as
// *RevertError with the revert payload attached when the node provides it.
// Any other failure is wrapped in ErrSimulationUnavailable.
func Simulate(ctx context.Context, client OnchainClient, msg ethereum.CallMsg) ([]byte, error) {
	ret, err := client.CallContract(ctx, msg, nil)
	if err == nil {
		return ret, nil
	}

	if data, ok := revertData(err); ok {
		return nil, &RevertError{Data: data}
	}

	return nil, errors.Join(ErrSimulationUnavailable, err)
}

// revertData extracts the revert payload from a JSON-RPC error, walking
// wrapped errors for the rpc.DataError carrying the hex-encoded bytes.
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}

	hexData, ok := de.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return nil, false
	}

	return data, true
}
