package approval

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisigkit/intent-engine/pkg/logger"
)

func permitTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"PermitDetails": {
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint160"},
			{Name: "expiration", Type: "uint48"},
			{Name: "nonce", Type: "uint48"},
		},
		"PermitSingle": {
			{Name: "details", Type: "PermitDetails"},
			{Name: "spender", Type: "address"},
			{Name: "sigDeadline", Type: "uint256"},
		},
		"PermitBatch": {
			{Name: "details", Type: "PermitDetails[]"},
			{Name: "spender", Type: "address"},
			{Name: "sigDeadline", Type: "uint256"},
		},
	}
}

func Test_ScanPermit_Single(t *testing.T) {
	t.Parallel()

	s := NewScanner(logger.Test(t))
	td := apitypes.TypedData{
		Types:       permitTypes(),
		PrimaryType: "PermitSingle",
		Message: apitypes.TypedDataMessage{
			"details": map[string]any{
				"token":      token.Hex(),
				"amount":     "1000000",
				"expiration": "1700000000",
				"nonce":      "0",
			},
			"spender":     spender.Hex(),
			"sigDeadline": "1700000000",
		},
	}

	grants := s.ScanPermit(td)
	require.Len(t, grants, 1)
	assert.Equal(t, token, grants[0].Token)
	assert.Equal(t, spender, grants[0].Spender)
	assert.Equal(t, MethodPermit2, grants[0].Method)
	assert.Equal(t, 0, grants[0].SourceIndex)
	assert.Zero(t, grants[0].Amount.Cmp(big.NewInt(1000000)))
	assert.False(t, grants[0].Unlimited)
}

func Test_ScanPermit_BatchWithUnlimited(t *testing.T) {
	t.Parallel()

	s := NewScanner(logger.Test(t))
	unlimited := UnlimitedAmount(MethodPermit2)
	td := apitypes.TypedData{
		Types:       permitTypes(),
		PrimaryType: "PermitBatch",
		Message: apitypes.TypedDataMessage{
			"details": []any{
				map[string]any{
					"token":      token.Hex(),
					"amount":     "500",
					"expiration": "1700000000",
					"nonce":      "1",
				},
				map[string]any{
					"token":      token2.Hex(),
					"amount":     unlimited.String(),
					"expiration": "1700000000",
					"nonce":      "2",
				},
			},
			"spender":     spender.Hex(),
			"sigDeadline": "1700000000",
		},
	}

	grants := s.ScanPermit(td)
	require.Len(t, grants, 2)

	assert.Equal(t, 0, grants[0].SourceIndex)
	assert.Zero(t, grants[0].Amount.Cmp(big.NewInt(500)))
	assert.False(t, grants[0].Unlimited)

	assert.Equal(t, 1, grants[1].SourceIndex)
	assert.True(t, grants[1].Unlimited)
	// The Permit2 sentinel is uint160 max, not uint256 max.
	assert.Zero(t, grants[1].Amount.Cmp(unlimited))
}

func Test_ScanPermit_UnknownPrimaryType(t *testing.T) {
	t.Parallel()

	s := NewScanner(logger.Test(t))
	td := apitypes.TypedData{
		Types:       permitTypes(),
		PrimaryType: "Mail",
		Message:     apitypes.TypedDataMessage{"contents": "hello"},
	}

	assert.Empty(t, s.ScanPermit(td))
}
