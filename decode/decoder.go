package decode

import (
	"fmt"

	"github.com/multisigkit/intent-engine/internal/abis"
)

// Decode turns a single opaque call into its constituent operations.
//
// A non-batch call yields exactly one operation equal to the input. A
// multiSend(bytes) call yields one operation per embedded sub-call, in
// execution order, unrolled one level only: a sub-call whose own payload is a
// batch stays opaque. A malformed batch payload yields (nil, *DecodeError),
// never a partial list.
func Decode(call Call) ([]Operation, error) {
	op := Operation{
		Target:  call.Target,
		Value:   call.Value,
		Payload: call.Payload,
		Kind:    call.Kind,
	}
	if !IsBatch(call.Payload) {
		return []Operation{op}, nil
	}

	args, err := abis.MultiSend.Methods["multiSend"].Inputs.Unpack(call.Payload[4:])
	if err != nil {
		return nil, newDecodeError("invalid multiSend calldata", err)
	}
	packed, ok := args[0].([]byte)
	if !ok {
		return nil, newDecodeError(fmt.Sprintf("unexpected multiSend argument type %T", args[0]), nil)
	}

	ops, err := unpackBatch(packed)
	if err != nil {
		return nil, newDecodeError("invalid batch encoding", err)
	}

	return ops, nil
}
