// Package chain provides read and submit access to an EVM chain for the
// intent engine: safe state reads, dry-run simulation with revert data
// extraction, and gas estimation.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

// OnchainClient is an EVM chain client.
// We use the existing geth interfaces to abstract chain clients so that both
// ethclient.Client and simulated backends satisfy it.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// ConfirmFunc waits for a submitted transaction to be mined and returns the
// block number it was included in.
type ConfirmFunc func(tx *types.Transaction) (uint64, error)

// Chain represents the EVM chain the engine operates on.
type Chain struct {
	ID uint64

	Client  OnchainClient
	Confirm ConfirmFunc
}

// Name returns the canonical chain name for the chain ID, or the numeric ID
// when the chain is not a known one.
func (c Chain) Name() string {
	details, err := chainsel.GetChainDetailsByChainIDAndFamily(
		new(big.Int).SetUint64(c.ID).String(), chainsel.FamilyEVM,
	)
	if err != nil || details.ChainName == "" {
		return new(big.Int).SetUint64(c.ID).String()
	}

	return details.ChainName
}

// EstimateGas estimates the gas required for the given call against the
// latest state.
func (c Chain) EstimateGas(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error) {
	return c.Client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
}
