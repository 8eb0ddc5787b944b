package permission

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/chain"
	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/pkg/logger"
)

// Simulator performs a zero-state-change dry run of a call.
type Simulator interface {
	Simulate(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// ClientSimulator adapts an OnchainClient to the Simulator interface.
type ClientSimulator struct {
	Client chain.OnchainClient
}

func (s ClientSimulator) Simulate(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return chain.Simulate(ctx, s.Client, msg)
}

// Resolver settles the indeterminate verdicts left by the static phase by
// simulating the would-be role-routed calls. Resolution failures degrade to a
// permanently indeterminate verdict and are logged, never returned: the
// evaluator boundary does not throw.
type Resolver struct {
	sim  Simulator
	lggr logger.Logger
}

// NewResolver returns a Resolver simulating through sim.
func NewResolver(sim Simulator, lggr logger.Logger) *Resolver {
	return &Resolver{sim: sim, lggr: lggr.Named("PermissionResolver")}
}

// Resolve settles every indeterminate entry of the evaluation in place and
// recomputes the aggregates. Independent roles are resolved concurrently with
// no ordering guarantee relative to each other; each role's own entries
// resolve sequentially.
func (r *Resolver) Resolve(ctx context.Context, eval *Evaluation) {
	var wg sync.WaitGroup
	for _, result := range eval.Results {
		if !result.Pending() {
			continue
		}
		wg.Add(1)
		go func(result *RoleResult) {
			defer wg.Done()
			r.resolveRole(ctx, eval, result)
		}(result)
	}
	wg.Wait()
}

func (r *Resolver) resolveRole(ctx context.Context, eval *Evaluation, result *RoleResult) {
	for i, v := range result.Verdicts {
		if v.Kind != VerdictIndeterminate {
			continue
		}
		result.Verdicts[i] = r.resolveOperation(ctx, eval.Actor, result.Role, eval.Operations[i])
	}
	result.recomputeAggregate()
}

// resolveOperation dry-runs a single operation routed through the role and
// maps the outcome back into the verdict taxonomy.
func (r *Resolver) resolveOperation(ctx context.Context, actor common.Address, role *Role, op decode.Operation) Verdict {
	data, err := abis.Roles.Pack("execTransactionWithRole",
		op.Target,
		opValue(op),
		op.Payload,
		uint8(op.Kind),
		role.Key,
		true, // shouldRevert, so a denial surfaces as a typed revert
	)
	if err != nil {
		r.lggr.Errorw("Failed to pack role call", "role", role.Key, "error", err)
		return Indeterminate
	}

	to := role.Modifier
	_, err = r.sim.Simulate(ctx, ethereum.CallMsg{From: actor, To: &to, Data: data})
	if err == nil {
		return Ok
	}

	var revert *chain.RevertError
	if errors.As(err, &revert) {
		if reason, ok := decodeConditionViolation(revert.Data); ok {
			return Violation(reason)
		}
		r.lggr.Warnw("Role call reverted with an unrecognized error; leaving indeterminate",
			"role", role.Key, "target", op.Target)
		return Indeterminate
	}

	// Node/transport failure: downgraded, logged, not retried.
	r.lggr.Warnw("Simulation unavailable; leaving indeterminate",
		"role", role.Key, "target", op.Target, "error", err)
	return Indeterminate
}

func opValue(op decode.Operation) *big.Int {
	if op.Value == nil {
		return new(big.Int)
	}

	return op.Value
}

// decodeConditionViolation decodes revert data against the permission
// module's ConditionViolation(uint8,bytes32) error.
func decodeConditionViolation(data []byte) (ViolationReason, bool) {
	errDef := abis.Roles.Errors["ConditionViolation"]
	unpacked, err := errDef.Unpack(data)
	if err != nil {
		return 0, false
	}
	values, ok := unpacked.([]any)
	if !ok || len(values) == 0 {
		return 0, false
	}
	status, ok := values[0].(uint8)
	if !ok {
		return 0, false
	}

	return mapViolationReason(status), true
}

// mapViolationReason folds the module's condition-check status codes into the
// fixed reason set. The code ranges follow the module's status enum:
// parameter comparisons, array quantifiers, allowance accounting, and the
// logical/custom condition groups.
func mapViolationReason(status uint8) ViolationReason {
	switch status {
	case 7, 8, 9, 10, 13, 14, 15:
		return ReasonParameterOutOfRange
	case 11, 12:
		return ReasonArrayElementFails
	case 17, 18, 19:
		return ReasonAllowanceExceeded
	default:
		return ReasonCustomCondition
	}
}
