package approval

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Permit2 typed-data primary types this scanner understands.
const (
	permitSingleType = "PermitSingle"
	permitBatchType  = "PermitBatch"
)

// ScanPermit extracts approval grants from an off-chain Permit2 typed-data
// message. One grant is emitted per PermitDetails entry; SourceIndex is the
// entry's position within the message. Amounts equal to the Permit2 unlimited
// sentinel (max uint160) are normalized to the symbolic unlimited value.
// Messages that do not match the Permit2 schema yield no grants.
func (s *Scanner) ScanPermit(td apitypes.TypedData) []Grant {
	spender, _ := messageAddress(td.Message["spender"])

	var entries []any
	switch td.PrimaryType {
	case permitSingleType:
		details, ok := td.Message["details"]
		if !ok {
			s.lggr.Warnw("Permit2 message missing details", "primaryType", td.PrimaryType)
			return nil
		}
		entries = []any{details}
	case permitBatchType:
		details, ok := td.Message["details"].([]any)
		if !ok {
			s.lggr.Warnw("Permit2 batch message missing details array", "primaryType", td.PrimaryType)
			return nil
		}
		entries = details
	default:
		s.lggr.Debugw("Not a Permit2 message", "primaryType", td.PrimaryType)
		return nil
	}

	grants := make([]Grant, 0, len(entries))
	for i, entry := range entries {
		details, ok := entry.(map[string]any)
		if !ok {
			s.lggr.Warnw("Skipping malformed Permit2 details entry", "index", i)
			continue
		}
		token, ok := messageAddress(details["token"])
		if !ok {
			s.lggr.Warnw("Skipping Permit2 entry without token", "index", i)
			continue
		}
		amount, ok := messageBig(details["amount"])
		if !ok {
			s.lggr.Warnw("Skipping Permit2 entry without amount", "index", i)
			continue
		}

		grants = append(grants, Grant{
			Token:       token,
			Spender:     spender,
			Amount:      amount,
			Unlimited:   isUnlimited(MethodPermit2, amount),
			Method:      MethodPermit2,
			SourceIndex: i,
		})
	}

	return grants
}

// messageAddress reads an address field from a typed-data message value.
func messageAddress(v any) (common.Address, bool) {
	str, ok := v.(string)
	if !ok || !common.IsHexAddress(str) {
		return common.Address{}, false
	}

	return common.HexToAddress(str), true
}

// messageBig reads a numeric field from a typed-data message value. EIP-712
// messages carry large numbers as decimal or 0x-prefixed strings, and
// json.Number when decoded with UseNumber.
func messageBig(v any) (*big.Int, bool) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "0x") || strings.HasPrefix(val, "0X") {
			n, ok := new(big.Int).SetString(val[2:], 16)
			return n, ok
		}
		n, ok := new(big.Int).SetString(val, 10)
		return n, ok
	case json.Number:
		n, ok := new(big.Int).SetString(val.String(), 10)
		return n, ok
	case float64:
		return new(big.Int).SetInt64(int64(val)), true
	case *big.Int:
		return new(big.Int).Set(val), true
	default:
		return nil, false
	}
}
