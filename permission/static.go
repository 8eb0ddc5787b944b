package permission

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/decode"
)

// RoleResult is the evaluation outcome for one role against the full
// operation list.
type RoleResult struct {
	Role *Role
	// Verdicts holds one verdict per operation, in operation order.
	Verdicts []Verdict
	// Aggregate is the role's verdict over the whole list.
	Aggregate Verdict
	// BatchIncompatible marks a role that would need batch execution but
	// has no usable batch-dispatch target. Such a role never counts as
	// allowing, whatever its per-operation verdicts say.
	BatchIncompatible bool
}

// Allows reports whether the role permits executing the whole list.
func (r *RoleResult) Allows() bool {
	return r.Aggregate.Kind == VerdictOk && !r.BatchIncompatible
}

// Pending reports whether any verdict still needs dynamic resolution.
func (r *RoleResult) Pending() bool {
	for _, v := range r.Verdicts {
		if v.Kind == VerdictIndeterminate {
			return true
		}
	}

	return false
}

// recomputeAggregate derives the aggregate verdict from the per-operation
// verdicts: Ok only if every operation is Ok; otherwise the first denial
// encountered, falling back to the first indeterminate entry when the only
// non-Ok verdicts are indeterminate ones.
func (r *RoleResult) recomputeAggregate() {
	var firstIndeterminate *Verdict
	for i := range r.Verdicts {
		switch r.Verdicts[i].Kind {
		case VerdictOk:
		case VerdictIndeterminate:
			if firstIndeterminate == nil {
				firstIndeterminate = &r.Verdicts[i]
			}
		default:
			r.Aggregate = r.Verdicts[i]
			return
		}
	}
	if firstIndeterminate != nil {
		r.Aggregate = *firstIndeterminate
		return
	}
	r.Aggregate = Ok
}

// Evaluation is the static-phase output for all roles.
type Evaluation struct {
	Actor      common.Address
	Operations []decode.Operation
	Results    []*RoleResult
}

// Evaluate statically classifies each role's permission outcome per
// operation. It is a pure function of its inputs: no chain access happens
// here, and entries that cannot be decided without simulation are marked
// indeterminate for the Resolver.
func Evaluate(ops []decode.Operation, actor common.Address, roles []*Role) *Evaluation {
	results := make([]*RoleResult, len(roles))
	for i, role := range roles {
		verdicts := make([]Verdict, len(ops))
		for j, op := range ops {
			verdicts[j] = evaluateOperation(role, op)
		}
		rr := &RoleResult{
			Role:              role,
			Verdicts:          verdicts,
			BatchIncompatible: !role.CanDispatchBatch(len(ops)),
		}
		rr.recomputeAggregate()
		results[i] = rr
	}

	return &Evaluation{Actor: actor, Operations: ops, Results: results}
}

// evaluateOperation classifies a single (role, operation) pair.
func evaluateOperation(role *Role, op decode.Operation) Verdict {
	rule, ok := role.ruleFor(op)
	if !ok {
		return Deny(VerdictTargetNotAllowed)
	}

	if rule.Clearance == ClearanceTarget {
		return checkExecutionOptions(rule.ExecOptions, op)
	}

	sel, ok := op.Selector()
	if !ok {
		// A plain value transfer has no selector to match under
		// function-scoped clearance.
		return Deny(VerdictFunctionNotAllowed)
	}
	fn, ok := rule.Functions[sel]
	if !ok {
		return Deny(VerdictFunctionNotAllowed)
	}
	if !fn.Wildcarded {
		// Value or parameter conditions attached: undecidable without a
		// dry run.
		return Indeterminate
	}

	return checkExecutionOptions(fn.ExecOptions, op)
}

// checkExecutionOptions validates the call's execution shape (ether send,
// delegate call) against the allowed execution options.
func checkExecutionOptions(opts ExecutionOptions, op decode.Operation) Verdict {
	if op.Kind == decode.CallKindDelegateCall && !opts.AllowsDelegateCall() {
		return Deny(VerdictDelegateCallNotAllowed)
	}
	if op.Value != nil && op.Value.Sign() > 0 && !opts.AllowsSend() {
		return Deny(VerdictSendNotAllowed)
	}

	return Ok
}
