package approval

import (
	"fmt"
	"math/big"

	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
)

// Rebuild substitutes the approval amounts in ops with the human-entered
// replacements, aligned 1:1 by order of appearance of the approval selector
// within the operation list (nested batch entries included). Every
// non-approval operation is carried over byte for byte; order is preserved.
//
// The replacement count must match the number of approval calls found, or an
// error is returned and ops is left untouched.
func Rebuild(ops []decode.Operation, amounts []Amount) ([]decode.Operation, error) {
	total, err := countApprovals(ops)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	if total != len(amounts) {
		return nil, fmt.Errorf("rebuild: %d replacement amounts for %d approval calls", len(amounts), total)
	}

	next := 0
	rebuilt, err := rebuildList(ops, amounts, &next)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	return rebuilt, nil
}

func rebuildList(ops []decode.Operation, amounts []Amount, next *int) ([]decode.Operation, error) {
	out := make([]decode.Operation, len(ops))
	for i, op := range ops {
		switch {
		case decode.IsBatch(op.Payload):
			inner, err := decode.Decode(decode.Call{Target: op.Target, Value: op.Value, Payload: op.Payload, Kind: op.Kind})
			if err != nil {
				return nil, err
			}
			before := *next
			rebuiltInner, err := rebuildList(inner, amounts, next)
			if err != nil {
				return nil, err
			}
			if *next == before {
				// No approvals inside: keep the original payload bytes.
				out[i] = op
				continue
			}
			payload, err := decode.EncodeBatch(rebuiltInner)
			if err != nil {
				return nil, err
			}
			out[i] = decode.Operation{Target: op.Target, Value: op.Value, Payload: payload, Kind: op.Kind}
		case isApprovalPayload(op.Payload):
			payload, err := replaceAmount(op.Payload, amounts[*next])
			if err != nil {
				return nil, err
			}
			*next++
			out[i] = decode.Operation{Target: op.Target, Value: op.Value, Payload: payload, Kind: op.Kind}
		default:
			out[i] = op
		}
	}

	return out, nil
}

// replaceAmount re-packs an approval payload with the replacement amount,
// keeping the original method and spender.
func replaceAmount(payload []byte, amount Amount) ([]byte, error) {
	var abiMethod string
	var sel [4]byte
	copy(sel[:], payload[:4])
	switch sel {
	case abis.ApproveSelector:
		abiMethod = "approve"
	case abis.IncreaseAllowanceSelector:
		abiMethod = "increaseAllowance"
	default:
		return nil, fmt.Errorf("payload is not an approval call")
	}

	args, err := abis.ERC20.Methods[abiMethod].Inputs.Unpack(payload[4:])
	if err != nil {
		return nil, fmt.Errorf("malformed %s calldata: %w", abiMethod, err)
	}

	value := amount.Value
	if amount.Unlimited {
		value = UnlimitedAmount(MethodApprove)
	}
	if value == nil {
		value = new(big.Int)
	}

	return abis.ERC20.Pack(abiMethod, args[0], value)
}
