package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/multisigkit/intent-engine/chain"
)

// ErrRejected is returned by a Signer when the user refuses a signing or
// submission request.
var ErrRejected = errors.New("user rejected the request")

// Signer is the connected actor's wallet: it signs hashes and typed data and
// submits transactions to the chain. Implementations other than LocalSigner
// (hardware wallets, browser wallets behind an RPC bridge) are expected to
// reject requests, which the router surfaces as a wallet rejection.
type Signer interface {
	// Address returns the account the signer signs for.
	Address() common.Address
	// SignHash signs a 32-byte digest and returns a 65-byte r||s||v
	// signature with v in {27, 28}.
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	// SignTypedData signs the EIP-712 digest of the typed data.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	// SubmitTransaction signs and broadcasts a transaction carrying the
	// given call and returns it.
	SubmitTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Transaction, error)
}

// LocalSigner signs with an in-process ECDSA key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	client  chain.OnchainClient
}

// NewLocalSigner returns a LocalSigner for the key, submitting through client
// on the given chain.
func NewLocalSigner(key *ecdsa.PrivateKey, chainID uint64, client chain.OnchainClient) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).SetUint64(chainID),
		client:  client,
	}
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	// Shift the recovery id into the {27, 28} range contracts verify.
	sig[64] += 27

	return sig, nil
}

func (s *LocalSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	return s.SignHash(ctx, common.BytesToHash(digest))
}

func (s *LocalSigner) SubmitTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return signed, nil
}
