// Package approval extracts token-approval grants from decoded operations and
// off-chain permit messages, and rebuilds operation lists with edited
// approval amounts.
package approval

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GrantMethod identifies how an approval grant was expressed.
type GrantMethod string

const (
	MethodApprove           GrantMethod = "approve"
	MethodIncreaseAllowance GrantMethod = "increaseAllowance"
	MethodPermit2           GrantMethod = "permit2"
)

var (
	// maxUint256 is the ERC-20 unlimited-allowance sentinel.
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	// maxUint160 is the Permit2 unlimited sentinel; Permit2 amounts are uint160.
	maxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
)

// UnlimitedAmount returns the literal on-chain value the symbolic unlimited
// amount re-encodes to for the given grant method.
func UnlimitedAmount(method GrantMethod) *big.Int {
	if method == MethodPermit2 {
		return new(big.Int).Set(maxUint160)
	}

	return new(big.Int).Set(maxUint256)
}

// Grant is one extracted token-spending permission.
//
// SourceIndex ties the grant back to the operation it was extracted from, or,
// for Permit2 batch messages, to the entry's position within the message.
type Grant struct {
	Token       common.Address
	Spender     common.Address
	Amount      *big.Int
	Unlimited   bool
	Method      GrantMethod
	SourceIndex int

	// TokenInfo is attached by a best-effort metadata lookup and may be nil.
	TokenInfo *TokenInfo
}

// isUnlimited reports whether amount equals the unlimited sentinel for the
// grant method.
func isUnlimited(method GrantMethod, amount *big.Int) bool {
	if amount == nil {
		return false
	}
	if method == MethodPermit2 {
		return amount.Cmp(maxUint160) == 0
	}

	return amount.Cmp(maxUint256) == 0
}

// Amount is a human-entered replacement amount for a scanned grant. An
// Unlimited amount re-encodes to the literal maximum for the grant's method.
type Amount struct {
	Value     *big.Int
	Unlimited bool
}
