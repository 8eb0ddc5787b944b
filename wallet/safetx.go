// Package wallet signs and assembles multisignature wallet transactions: the
// EIP-712 hash a Safe owner signs, the sorted signature blob execTransaction
// expects, and the signer abstractions the router dispatches through.
package wallet

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/multisigkit/intent-engine/decode"
)

// SafeTx is the payload of one Safe transaction, the struct hashed under
// EIP-712 and executed through execTransaction.
type SafeTx struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation decode.CallKind
	SafeTxGas *big.Int
	BaseGas   *big.Int
	GasPrice  *big.Int
	GasToken  common.Address
	RefundRcv common.Address
	Nonce     uint64
}

// NewSafeTx builds the Safe transaction for a single operation with the gas
// refund fields zeroed, which is the shape every modern Safe client proposes.
func NewSafeTx(op decode.Operation, nonce uint64) SafeTx {
	value := op.Value
	if value == nil {
		value = new(big.Int)
	}

	return SafeTx{
		To:        op.Target,
		Value:     value,
		Data:      op.Payload,
		Operation: op.Kind,
		SafeTxGas: new(big.Int),
		BaseGas:   new(big.Int),
		GasPrice:  new(big.Int),
		Nonce:     nonce,
	}
}

// TypedData returns the EIP-712 typed data for the transaction on the given
// Safe and chain.
func (tx SafeTx) TypedData(chainID uint64, safe common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SafeTx": {
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "data", Type: "bytes"},
				{Name: "operation", Type: "uint8"},
				{Name: "safeTxGas", Type: "uint256"},
				{Name: "baseGas", Type: "uint256"},
				{Name: "gasPrice", Type: "uint256"},
				{Name: "gasToken", Type: "address"},
				{Name: "refundReceiver", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: safe.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             tx.To.Hex(),
			"value":          tx.Value.String(),
			"data":           hexutil.Encode(tx.Data),
			"operation":      fmt.Sprintf("%d", tx.Operation),
			"safeTxGas":      tx.SafeTxGas.String(),
			"baseGas":        tx.BaseGas.String(),
			"gasPrice":       tx.GasPrice.String(),
			"gasToken":       tx.GasToken.Hex(),
			"refundReceiver": tx.RefundRcv.Hex(),
			"nonce":          new(big.Int).SetUint64(tx.Nonce).String(),
		},
	}
}

// Hash returns the EIP-712 digest a Safe owner signs to approve the
// transaction.
func (tx SafeTx) Hash(chainID uint64, safe common.Address) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(tx.TypedData(chainID, safe))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash safe tx: %w", err)
	}

	return common.BytesToHash(digest), nil
}

// Signature is one owner's approval of a Safe transaction hash.
type Signature struct {
	Signer common.Address
	// Bytes is the 65-byte r||s||v signature with v in {27, 28}.
	Bytes []byte
}

// RecoverSigner recovers the signing address of a 65-byte signature over the
// given hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// crypto.SigToPub wants the recovery id in {0, 1}.
	norm := make([]byte, 65)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// ValidateSignature recovers the signer, checks owner membership, and returns
// the attributed signature.
func ValidateSignature(hash common.Hash, sig []byte, owners []common.Address) (Signature, error) {
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return Signature{}, err
	}
	for _, owner := range owners {
		if owner == signer {
			return Signature{Signer: signer, Bytes: sig}, nil
		}
	}

	return Signature{}, fmt.Errorf("signer %s is not a wallet owner", signer)
}

// AssembleSignatures concatenates signatures in ascending signer-address
// order, the layout execTransaction verifies against. Duplicate signers
// collapse to a single entry.
func AssembleSignatures(sigs []Signature) []byte {
	deduped := make([]Signature, 0, len(sigs))
	seen := make(map[common.Address]bool, len(sigs))
	for _, sig := range sigs {
		if seen[sig.Signer] {
			continue
		}
		seen[sig.Signer] = true
		deduped = append(deduped, sig)
	}
	sort.Slice(deduped, func(i, j int) bool {
		return bytes.Compare(deduped[i].Signer.Bytes(), deduped[j].Signer.Bytes()) < 0
	})

	var out []byte
	for _, sig := range deduped {
		out = append(out, sig.Bytes...)
	}

	return out
}
