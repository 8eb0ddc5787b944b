package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/multisigkit/intent-engine/internal/abis"
)

// The multiSend packed encoding concatenates, per embedded transaction:
// 1 byte operation, 20 bytes target, 32 bytes value, 32 bytes data length,
// then the data itself.
const (
	packedOpSize     = 1
	packedAddrSize   = common.AddressLength
	packedWordSize   = 32
	packedHeaderSize = packedOpSize + packedAddrSize + 2*packedWordSize
)

// IsBatch reports whether the payload is a multiSend(bytes) call.
func IsBatch(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	var sel [4]byte
	copy(sel[:], payload[:4])

	return sel == abis.MultiSendSelector
}

// unpackBatch decodes the packed transactions blob carried by a multiSend
// call into individual operations, in their on-chain execution order.
func unpackBatch(packed []byte) ([]Operation, error) {
	ops := make([]Operation, 0, 4)
	for offset := 0; offset < len(packed); {
		if len(packed)-offset < packedHeaderSize {
			return nil, fmt.Errorf("truncated batch entry header at offset %d", offset)
		}

		kind := CallKind(packed[offset])
		if kind != CallKindCall && kind != CallKindDelegateCall {
			return nil, fmt.Errorf("invalid operation byte %d at offset %d", packed[offset], offset)
		}
		offset += packedOpSize

		target := common.BytesToAddress(packed[offset : offset+packedAddrSize])
		offset += packedAddrSize

		value := new(big.Int).SetBytes(packed[offset : offset+packedWordSize])
		offset += packedWordSize

		dataLen := new(big.Int).SetBytes(packed[offset : offset+packedWordSize])
		offset += packedWordSize
		if !dataLen.IsInt64() || dataLen.Int64() > int64(len(packed)-offset) {
			return nil, fmt.Errorf("batch entry data length %s exceeds remaining payload", dataLen)
		}

		n := int(dataLen.Int64())
		payload := make([]byte, n)
		copy(payload, packed[offset:offset+n])
		offset += n

		ops = append(ops, Operation{
			Target:  target,
			Value:   value,
			Payload: payload,
			Kind:    kind,
		})
	}

	return ops, nil
}

// packBatch is the exact inverse of unpackBatch.
func packBatch(ops []Operation) []byte {
	size := 0
	for _, op := range ops {
		size += packedHeaderSize + len(op.Payload)
	}

	packed := make([]byte, 0, size)
	for _, op := range ops {
		packed = append(packed, byte(op.Kind))
		packed = append(packed, op.Target.Bytes()...)
		packed = append(packed, math.U256Bytes(new(big.Int).Set(op.value()))...)
		packed = append(packed, math.U256Bytes(big.NewInt(int64(len(op.Payload))))...)
		packed = append(packed, op.Payload...)
	}

	return packed
}

// EncodeBatch re-encodes operations as a multiSend(bytes) payload. Decoding a
// batch call and re-encoding its operations yields the original payload
// byte for byte.
func EncodeBatch(ops []Operation) ([]byte, error) {
	payload, err := abis.MultiSend.Pack("multiSend", packBatch(ops))
	if err != nil {
		return nil, err
	}

	return payload, nil
}
