package approval

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/pkg/logger"
)

// Scanner extracts approval grants from operation lists. Decode failures on
// individual operations degrade to "no grant found" and are logged, never
// returned.
type Scanner struct {
	lggr logger.Logger
}

// NewScanner returns a Scanner logging through lggr.
func NewScanner(lggr logger.Logger) *Scanner {
	return &Scanner{lggr: lggr.Named("ApprovalScanner")}
}

// Scan walks the operations and returns every token-approval grant, in
// ascending SourceIndex order. Grants with zero amount are retained; filtering
// is a display concern. An operation whose payload is itself a batch is
// unpacked here so approvals hidden in nested batches are still found, keyed
// by the outer operation's index.
func (s *Scanner) Scan(ops []decode.Operation) []Grant {
	grants := make([]Grant, 0)
	for i, op := range ops {
		grants = append(grants, s.scanOperation(i, op)...)
	}

	return grants
}

func (s *Scanner) scanOperation(index int, op decode.Operation) []Grant {
	if decode.IsBatch(op.Payload) {
		inner, err := decode.Decode(decode.Call{
			Target:  op.Target,
			Value:   op.Value,
			Payload: op.Payload,
			Kind:    op.Kind,
		})
		if err != nil {
			s.lggr.Warnw("Skipping malformed nested batch", "index", index, "error", err)
			return nil
		}
		grants := make([]Grant, 0)
		for _, innerOp := range inner {
			grants = append(grants, s.scanOperation(index, innerOp)...)
		}

		return grants
	}

	method, spender, amount, ok := s.decodeApproval(op)
	if !ok {
		return nil
	}

	return []Grant{{
		Token:       op.Target,
		Spender:     spender,
		Amount:      amount,
		Unlimited:   isUnlimited(method, amount),
		Method:      method,
		SourceIndex: index,
	}}
}

// decodeApproval decodes (spender, amount) from an approve or
// increaseAllowance payload. Anything else, including malformed argument
// encodings, reports no approval.
func (s *Scanner) decodeApproval(op decode.Operation) (GrantMethod, common.Address, *big.Int, bool) {
	sel, ok := op.Selector()
	if !ok {
		return "", common.Address{}, nil, false
	}

	var method GrantMethod
	var abiMethod string
	switch sel {
	case abis.ApproveSelector:
		method, abiMethod = MethodApprove, "approve"
	case abis.IncreaseAllowanceSelector:
		method, abiMethod = MethodIncreaseAllowance, "increaseAllowance"
	default:
		return "", common.Address{}, nil, false
	}

	args, err := abis.ERC20.Methods[abiMethod].Inputs.Unpack(op.Payload[4:])
	if err != nil {
		s.lggr.Warnw("Skipping malformed approval calldata",
			"token", op.Target, "method", abiMethod, "error", err)
		return "", common.Address{}, nil, false
	}
	spender, ok := args[0].(common.Address)
	if !ok {
		return "", common.Address{}, nil, false
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return "", common.Address{}, nil, false
	}

	return method, spender, amount, true
}

// countApprovals returns how many editable approval calls appear in ops,
// in order of appearance, including ones nested one batch level down.
func countApprovals(ops []decode.Operation) (int, error) {
	n := 0
	for i, op := range ops {
		if decode.IsBatch(op.Payload) {
			inner, err := decode.Decode(decode.Call{Target: op.Target, Value: op.Value, Payload: op.Payload, Kind: op.Kind})
			if err != nil {
				return 0, fmt.Errorf("operation %d: %w", i, err)
			}
			m, err := countApprovals(inner)
			if err != nil {
				return 0, err
			}
			n += m

			continue
		}
		if isApprovalPayload(op.Payload) {
			n++
		}
	}

	return n, nil
}

func isApprovalPayload(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	var sel [4]byte
	copy(sel[:], payload[:4])

	return sel == abis.ApproveSelector || sel == abis.IncreaseAllowanceSelector
}
