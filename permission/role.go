// Package permission classifies whether a delegated role permits executing a
// set of operations. Classification runs in two phases: a pure static pass
// over the role's rule tree, and an asynchronous resolver that settles the
// remaining indeterminate entries with simulated on-chain calls.
package permission

import (
	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/decode"
)

// ExecutionOptions are the execution capabilities a rule grants for a target
// or a function: whether calls may carry ether and whether they may be
// delegate calls. The wire values match the permission module's enum.
type ExecutionOptions uint8

const (
	ExecutionNone ExecutionOptions = iota
	ExecutionSend
	ExecutionDelegateCall
	ExecutionBoth
)

// AllowsSend reports whether calls carrying ether are permitted.
func (o ExecutionOptions) AllowsSend() bool {
	return o == ExecutionSend || o == ExecutionBoth
}

// AllowsDelegateCall reports whether delegate calls are permitted.
func (o ExecutionOptions) AllowsDelegateCall() bool {
	return o == ExecutionDelegateCall || o == ExecutionBoth
}

// Clearance is the access level a rule grants for a target address.
type Clearance uint8

const (
	// ClearanceNone grants nothing; equivalent to no rule for the target.
	ClearanceNone Clearance = iota
	// ClearanceTarget grants blanket access to the whole target.
	ClearanceTarget
	// ClearanceFunction restricts access to specific functions.
	ClearanceFunction
)

// FunctionRule scopes a single function selector on a target.
type FunctionRule struct {
	ExecOptions ExecutionOptions
	// Wildcarded means the function has no parameter or value conditions
	// attached; a non-wildcarded match can only be decided by simulation.
	Wildcarded bool
}

// TargetRule is a role's rule for one target address.
type TargetRule struct {
	Clearance   Clearance
	ExecOptions ExecutionOptions
	Functions   map[[4]byte]FunctionRule
}

// Role is a delegated-permission grant fetched from the on-chain rule
// registry. It is read-only external state, keyed by the delegation-module
// address and the per-role key, and is never mutated by this system.
type Role struct {
	// Modifier is the delegation-module contract the role lives on.
	Modifier common.Address
	// Key identifies the role within the modifier.
	Key [32]byte
	// Members are the accounts allowed to execute through this role.
	Members map[common.Address]bool
	// Targets is the role's permission tree, keyed by target address.
	Targets map[common.Address]TargetRule
	// BatchTargets are the batch-dispatch contracts the role may route a
	// multi-operation call through. A role without one cannot execute
	// batches.
	BatchTargets []common.Address
	// Version is the modifier's reported version, when known.
	Version *semver.Version
}

// IsMember reports whether addr belongs to the role.
func (r *Role) IsMember(addr common.Address) bool {
	return r.Members[addr]
}

// CanDispatchBatch reports whether the role has a usable batch-dispatch
// target for the given operation count.
func (r *Role) CanDispatchBatch(opCount int) bool {
	return opCount <= 1 || len(r.BatchTargets) > 0
}

// ruleFor returns the role's rule for an operation's target.
func (r *Role) ruleFor(op decode.Operation) (TargetRule, bool) {
	rule, ok := r.Targets[op.Target]
	if !ok || rule.Clearance == ClearanceNone {
		return TargetRule{}, false
	}

	return rule, true
}
