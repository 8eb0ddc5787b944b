// Package decode turns opaque on-chain calls into structured operations.
//
// A call whose payload matches the multiSend(bytes) selector is unrolled one
// level into its embedded sub-calls; anything else passes through as a single
// operation. Nested batches inside a sub-call are preserved as opaque payload
// bytes and re-examined on demand by downstream consumers.
package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallKind distinguishes a regular call from a delegate call. The wire values
// match the Safe operation enum.
type CallKind uint8

const (
	// CallKindCall is a plain CALL.
	CallKindCall CallKind = 0
	// CallKindDelegateCall is a DELEGATECALL.
	CallKindDelegateCall CallKind = 1
)

func (k CallKind) String() string {
	switch k {
	case CallKindCall:
		return "call"
	case CallKindDelegateCall:
		return "delegatecall"
	default:
		return "unknown"
	}
}

// Call is a raw, not yet decoded on-chain call.
type Call struct {
	Target  common.Address
	Value   *big.Int
	Payload []byte
	Kind    CallKind
}

// Operation is one decoded on-chain call. Operations are immutable once
// produced; their position in the decoded list is the addressing key used by
// the approval scanner and the permission evaluator.
type Operation struct {
	Target  common.Address
	Value   *big.Int
	Payload []byte
	Kind    CallKind
}

// value returns the operation value, treating nil as zero.
func (o Operation) value() *big.Int {
	if o.Value == nil {
		return new(big.Int)
	}

	return o.Value
}

// Selector returns the 4-byte function selector of the payload, or false when
// the payload is shorter than a selector.
func (o Operation) Selector() ([4]byte, bool) {
	var sel [4]byte
	if len(o.Payload) < 4 {
		return sel, false
	}
	copy(sel[:], o.Payload[:4])

	return sel, true
}
