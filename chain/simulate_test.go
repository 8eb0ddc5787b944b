package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callClient stubs OnchainClient with a canned CallContract.
type callClient struct {
	OnchainClient

	call func(msg ethereum.CallMsg) ([]byte, error)
}

func (c *callClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return c.call(msg)
}

// dataError mimics the JSON-RPC error geth returns for reverted eth_calls.
type dataError struct {
	data string
}

func (e *dataError) Error() string          { return "execution reverted" }
func (e *dataError) ErrorData() interface{} { return e.data }

func Test_Simulate(t *testing.T) {
	t.Parallel()

	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	msg := ethereum.CallMsg{To: &to}

	t.Run("success returns the call output", func(t *testing.T) {
		t.Parallel()

		client := &callClient{call: func(ethereum.CallMsg) ([]byte, error) {
			return []byte{0x01}, nil
		}}

		ret, err := Simulate(context.Background(), client, msg)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01}, ret)
	})

	t.Run("revert surfaces the revert data", func(t *testing.T) {
		t.Parallel()

		payload := []byte{0xde, 0xad, 0xbe, 0xef}
		client := &callClient{call: func(ethereum.CallMsg) ([]byte, error) {
			return nil, &dataError{data: hexutil.Encode(payload)}
		}}

		_, err := Simulate(context.Background(), client, msg)
		var revert *RevertError
		require.ErrorAs(t, err, &revert)
		assert.Equal(t, payload, revert.Data)
	})

	t.Run("transport failure is simulation unavailable", func(t *testing.T) {
		t.Parallel()

		client := &callClient{call: func(ethereum.CallMsg) ([]byte, error) {
			return nil, errors.New("dial tcp: connection refused")
		}}

		_, err := Simulate(context.Background(), client, msg)
		require.ErrorIs(t, err, ErrSimulationUnavailable)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("revert without usable data is unavailable, not a revert", func(t *testing.T) {
		t.Parallel()

		client := &callClient{call: func(ethereum.CallMsg) ([]byte, error) {
			return nil, &dataError{data: "not-hex"}
		}}

		_, err := Simulate(context.Background(), client, msg)
		require.ErrorIs(t, err, ErrSimulationUnavailable)
	})
}
