package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleResult(key byte, aggregate Verdict) *RoleResult {
	return &RoleResult{
		Role:      &Role{Key: [32]byte{key}},
		Verdicts:  []Verdict{aggregate},
		Aggregate: aggregate,
	}
}

func Test_MostLikely(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		results []*RoleResult
		wantKey byte
	}{
		{
			name: "allowing role wins over everything",
			results: []*RoleResult{
				roleResult(1, Deny(VerdictTargetNotAllowed)),
				roleResult(2, Violation(ReasonAllowanceExceeded)),
				roleResult(3, Ok),
			},
			wantKey: 3,
		},
		{
			name: "condition violation beats generic rejection",
			results: []*RoleResult{
				roleResult(1, Deny(VerdictTargetNotAllowed)),
				roleResult(2, Deny(VerdictFunctionNotAllowed)),
				roleResult(3, Violation(ReasonParameterOutOfRange)),
			},
			wantKey: 3,
		},
		{
			name: "execution-option denial beats generic rejection",
			results: []*RoleResult{
				roleResult(1, Deny(VerdictFunctionNotAllowed)),
				roleResult(2, Deny(VerdictSendNotAllowed)),
			},
			wantKey: 2,
		},
		{
			name: "function denial beats target denial",
			results: []*RoleResult{
				roleResult(1, Deny(VerdictTargetNotAllowed)),
				roleResult(2, Deny(VerdictFunctionNotAllowed)),
			},
			wantKey: 2,
		},
		{
			name: "all target-denied falls back to input order",
			results: []*RoleResult{
				roleResult(1, Deny(VerdictTargetNotAllowed)),
				roleResult(2, Deny(VerdictTargetNotAllowed)),
			},
			wantKey: 1,
		},
		{
			name: "ties break by input order",
			results: []*RoleResult{
				roleResult(1, Ok),
				roleResult(2, Ok),
			},
			wantKey: 1,
		},
		{
			name: "batch-incompatible allowing role loses to a usable one",
			results: []*RoleResult{
				func() *RoleResult {
					r := roleResult(1, Ok)
					r.BatchIncompatible = true
					return r
				}(),
				roleResult(2, Ok),
			},
			wantKey: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eval := &Evaluation{Results: tt.results}
			got := eval.MostLikely()
			require.NotNil(t, got)
			assert.Equal(t, [32]byte{tt.wantKey}, got.Role.Key)
		})
	}
}

func Test_MostLikely_Empty(t *testing.T) {
	t.Parallel()

	eval := &Evaluation{}
	assert.Nil(t, eval.MostLikely())
}
