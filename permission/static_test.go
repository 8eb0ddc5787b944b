package permission

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
)

var (
	testVault    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOther    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testActor    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testModifier = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testBatcher  = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

var transferSel = selector4(abis.ERC20.Methods["transfer"].ID)

func selector4(id []byte) [4]byte {
	var sel [4]byte
	copy(sel[:], id)

	return sel
}

// vaultRole permits transfer(address,uint256) on testVault, wildcarded with
// ether sends allowed, and nothing else.
func vaultRole() *Role {
	return &Role{
		Modifier: testModifier,
		Key:      [32]byte{0x01},
		Members:  map[common.Address]bool{testActor: true},
		Targets: map[common.Address]TargetRule{
			testVault: {
				Clearance: ClearanceFunction,
				Functions: map[[4]byte]FunctionRule{
					transferSel: {ExecOptions: ExecutionSend, Wildcarded: true},
				},
			},
		},
		BatchTargets: []common.Address{testBatcher},
	}
}

func transferPayload(t *testing.T) []byte {
	t.Helper()

	data, err := abis.ERC20.Pack("transfer", testOther, big.NewInt(1))
	require.NoError(t, err)

	return data
}

func approvePayload(t *testing.T) []byte {
	t.Helper()

	data, err := abis.ERC20.Pack("approve", testOther, big.NewInt(1))
	require.NoError(t, err)

	return data
}

func Test_Evaluate_SingleRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Role)
		op     decode.Operation
		want   VerdictKind
	}{
		{
			name: "wildcarded function with send allowed",
			op: decode.Operation{
				Target:  testVault,
				Value:   big.NewInt(100),
				Payload: transferPayload(t),
			},
			want: VerdictOk,
		},
		{
			name: "unknown target",
			op: decode.Operation{
				Target:  testOther,
				Payload: transferPayload(t),
			},
			want: VerdictTargetNotAllowed,
		},
		{
			name: "unmatched selector on a scoped target",
			op: decode.Operation{
				Target:  testVault,
				Payload: approvePayload(t),
			},
			want: VerdictFunctionNotAllowed,
		},
		{
			name: "plain value transfer under function clearance",
			op: decode.Operation{
				Target: testVault,
				Value:  big.NewInt(1),
			},
			want: VerdictFunctionNotAllowed,
		},
		{
			name: "send denied when options forbid ether",
			mutate: func(r *Role) {
				sel := transferSel
				r.Targets[testVault].Functions[sel] = FunctionRule{
					ExecOptions: ExecutionNone, Wildcarded: true,
				}
			},
			op: decode.Operation{
				Target:  testVault,
				Value:   big.NewInt(1),
				Payload: transferPayload(t),
			},
			want: VerdictSendNotAllowed,
		},
		{
			name: "delegate call denied by default",
			mutate: func(r *Role) {
				r.Targets[testVault] = TargetRule{
					Clearance:   ClearanceTarget,
					ExecOptions: ExecutionSend,
				}
			},
			op: decode.Operation{
				Target:  testVault,
				Payload: transferPayload(t),
				Kind:    decode.CallKindDelegateCall,
			},
			want: VerdictDelegateCallNotAllowed,
		},
		{
			name: "conditioned function stays indeterminate",
			mutate: func(r *Role) {
				sel := transferSel
				r.Targets[testVault].Functions[sel] = FunctionRule{
					ExecOptions: ExecutionSend, Wildcarded: false,
				}
			},
			op: decode.Operation{
				Target:  testVault,
				Payload: transferPayload(t),
			},
			want: VerdictIndeterminate,
		},
		{
			name: "target clearance grants any function",
			mutate: func(r *Role) {
				r.Targets[testVault] = TargetRule{
					Clearance:   ClearanceTarget,
					ExecOptions: ExecutionBoth,
				}
			},
			op: decode.Operation{
				Target:  testVault,
				Value:   big.NewInt(7),
				Payload: approvePayload(t),
				Kind:    decode.CallKindDelegateCall,
			},
			want: VerdictOk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			role := vaultRole()
			if tt.mutate != nil {
				tt.mutate(role)
			}

			eval := Evaluate([]decode.Operation{tt.op}, testActor, []*Role{role})
			require.Len(t, eval.Results, 1)
			require.Len(t, eval.Results[0].Verdicts, 1)
			assert.Equal(t, tt.want, eval.Results[0].Verdicts[0].Kind)
			assert.Equal(t, tt.want, eval.Results[0].Aggregate.Kind)
		})
	}
}

func Test_Evaluate_Aggregate(t *testing.T) {
	t.Parallel()

	role := vaultRole()
	sel := transferSel
	role.Targets[testVault].Functions[sel] = FunctionRule{
		ExecOptions: ExecutionSend, Wildcarded: false,
	}

	ops := []decode.Operation{
		{Target: testVault, Payload: transferPayload(t)}, // indeterminate
		{Target: testOther, Payload: transferPayload(t)}, // denied
	}

	eval := Evaluate(ops, testActor, []*Role{role})
	result := eval.Results[0]

	// A hard denial dominates an indeterminate entry in the aggregate.
	assert.Equal(t, VerdictIndeterminate, result.Verdicts[0].Kind)
	assert.Equal(t, VerdictTargetNotAllowed, result.Verdicts[1].Kind)
	assert.Equal(t, VerdictTargetNotAllowed, result.Aggregate.Kind)
	assert.True(t, result.Pending())
	assert.False(t, result.Allows())
}

func Test_Evaluate_BatchIncompatible(t *testing.T) {
	t.Parallel()

	role := vaultRole()
	role.BatchTargets = nil

	op := decode.Operation{Target: testVault, Value: big.NewInt(1), Payload: transferPayload(t)}

	single := Evaluate([]decode.Operation{op}, testActor, []*Role{role})
	assert.False(t, single.Results[0].BatchIncompatible)
	assert.True(t, single.Results[0].Allows())

	batch := Evaluate([]decode.Operation{op, op}, testActor, []*Role{role})
	assert.True(t, batch.Results[0].BatchIncompatible)
	assert.Equal(t, VerdictOk, batch.Results[0].Aggregate.Kind)
	assert.False(t, batch.Results[0].Allows(), "an allowing aggregate must not count without a batch path")
}

func Test_Evaluate_Deterministic(t *testing.T) {
	t.Parallel()

	role := vaultRole()
	ops := []decode.Operation{
		{Target: testVault, Value: big.NewInt(5), Payload: transferPayload(t)},
		{Target: testOther, Payload: approvePayload(t)},
	}

	first := Evaluate(ops, testActor, []*Role{role})
	second := Evaluate(ops, testActor, []*Role{role})

	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].Verdicts, second.Results[i].Verdicts)
		assert.Equal(t, first.Results[i].Aggregate, second.Results[i].Aggregate)
	}
}
