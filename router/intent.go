// Package router drives a pending multisignature action from proposal to
// confirmation: it assigns the nonce, collects owner signatures, selects
// exactly one execution path, dispatches it, and tracks the result through a
// small finite state machine.
package router

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/wallet"
)

// Status is the lifecycle state of an intent.
type Status uint8

const (
	// StatusDrafting: operations assembled, nothing committed yet.
	StatusDrafting Status = iota
	// StatusAwaitingSignatures: proposed, signature collection in progress.
	// An intent whose nonce is ahead of the wallet also parks here; that is
	// queued backpressure, not an error.
	StatusAwaitingSignatures
	// StatusExecutable: threshold met and nonce current.
	StatusExecutable
	// StatusExecutableViaRole: a delegated role grants execution without
	// owner signatures.
	StatusExecutableViaRole
	// StatusDispatching: a direct or relayed dispatch is in flight.
	StatusDispatching
	// StatusDispatchingViaRole: a role-routed dispatch is in flight or
	// awaiting the indexer.
	StatusDispatchingViaRole
	// StatusConfirmed: execution observed on chain (or in the index).
	StatusConfirmed
	// StatusFailed: dispatch failed terminally.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDrafting:
		return "drafting"
	case StatusAwaitingSignatures:
		return "awaiting signatures"
	case StatusExecutable:
		return "executable"
	case StatusExecutableViaRole:
		return "executable via role"
	case StatusDispatching:
		return "dispatching"
	case StatusDispatchingViaRole:
		return "dispatching via role"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// dispatching reports whether a dispatch is currently in flight.
func (s Status) dispatching() bool {
	return s == StatusDispatching || s == StatusDispatchingViaRole
}

// terminal reports whether the state admits no further transitions.
func (s Status) terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Path is an execution route for an intent.
type Path uint8

const (
	PathUnset Path = iota
	// PathDirect executes through the wallet's execTransaction with the
	// collected owner signatures, the connected actor paying gas.
	PathDirect
	// PathRole executes through a delegated-role modifier, bypassing the
	// signature threshold.
	PathRole
	// PathRelay hands the fully-signed call to the relay, which pays gas.
	PathRelay
)

func (p Path) String() string {
	switch p {
	case PathDirect:
		return "direct"
	case PathRole:
		return "role"
	case PathRelay:
		return "relay"
	default:
		return "unset"
	}
}

// Intent is one in-progress wallet action. It is a single-owner handle: the
// router mutates it under its internal lock and callers must not copy it.
//
// ChosenPath is fixed by the first dispatch that reaches the chain (or is
// accepted by the relay) and never changes afterwards, even across retries
// of a failed dispatch. A dispatch that never got that far leaves it unset.
type Intent struct {
	mu sync.Mutex

	ID         uuid.UUID
	Safe       common.Address
	Operations []decode.Operation
	Proposer   common.Address

	Nonce         uint64
	nonceAssigned bool
	Threshold     uint64

	Signatures []wallet.Signature

	ChosenPath Path
	Status     Status

	// TxHash is the submission transaction, set once dispatched on chain.
	TxHash common.Hash
	// RelayTask is the relay's task identifier, set on relay acceptance.
	RelayTask string
	// FailureCause is set when Status is StatusFailed.
	FailureCause error
}

// NewIntent creates a drafting intent for the given operations.
func NewIntent(safe common.Address, ops []decode.Operation, proposer common.Address) *Intent {
	return &Intent{
		ID:         uuid.New(),
		Safe:       safe,
		Operations: ops,
		Proposer:   proposer,
		Status:     StatusDrafting,
	}
}

// batch reports whether the intent needs batch dispatch.
func (in *Intent) batch() bool {
	return len(in.Operations) > 1
}

// signedBy reports whether the owner already has a signature collected.
func (in *Intent) signedBy(owner common.Address) bool {
	for _, sig := range in.Signatures {
		if sig.Signer == owner {
			return true
		}
	}

	return false
}

// thresholdMet reports whether enough signatures are collected.
func (in *Intent) thresholdMet() bool {
	return uint64(len(in.Signatures)) >= in.Threshold
}
