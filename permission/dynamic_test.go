package permission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisigkit/intent-engine/chain"
	"github.com/multisigkit/intent-engine/decode"
	"github.com/multisigkit/intent-engine/internal/abis"
	"github.com/multisigkit/intent-engine/pkg/logger"
)

// fakeSimulator returns canned results keyed by call order and records the
// messages it saw.
type fakeSimulator struct {
	mu      sync.Mutex
	results []error
	calls   []ethereum.CallMsg
}

func (f *fakeSimulator) Simulate(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, msg)
	if len(f.results) == 0 {
		return nil, nil
	}
	err := f.results[0]
	f.results = f.results[1:]

	return nil, err
}

// conditionViolationData packs revert data for the module's
// ConditionViolation(uint8,bytes32) error with the given status code.
func conditionViolationData(t *testing.T, status uint8) []byte {
	t.Helper()

	errDef := abis.Roles.Errors["ConditionViolation"]
	packed, err := errDef.Inputs.Pack(status, [32]byte{})
	require.NoError(t, err)

	return append(errDef.ID.Bytes()[:4], packed...)
}

func pendingEvaluation(t *testing.T, roles ...*Role) *Evaluation {
	t.Helper()

	ops := []decode.Operation{{Target: testVault, Payload: transferPayload(t)}}
	eval := Evaluate(ops, testActor, roles)
	for _, r := range eval.Results {
		require.True(t, r.Pending(), "test setup expects an indeterminate verdict")
	}

	return eval
}

// conditionedRole attaches parameter conditions to the transfer rule so the
// static phase leaves it indeterminate.
func conditionedRole() *Role {
	role := vaultRole()
	role.Targets[testVault].Functions[transferSel] = FunctionRule{
		ExecOptions: ExecutionSend, Wildcarded: false,
	}

	return role
}

func Test_Resolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		simErr     error
		want       VerdictKind
		wantReason ViolationReason
	}{
		{
			name:   "successful simulation settles to ok",
			simErr: nil,
			want:   VerdictOk,
		},
		{
			name:       "parameter condition revert",
			simErr:     &chain.RevertError{Data: conditionViolationData(t, 7)},
			want:       VerdictConditionViolation,
			wantReason: ReasonParameterOutOfRange,
		},
		{
			name:       "allowance condition revert",
			simErr:     &chain.RevertError{Data: conditionViolationData(t, 17)},
			want:       VerdictConditionViolation,
			wantReason: ReasonAllowanceExceeded,
		},
		{
			name:       "array quantifier revert",
			simErr:     &chain.RevertError{Data: conditionViolationData(t, 11)},
			want:       VerdictConditionViolation,
			wantReason: ReasonArrayElementFails,
		},
		{
			name:       "unmapped status code falls back to custom",
			simErr:     &chain.RevertError{Data: conditionViolationData(t, 42)},
			want:       VerdictConditionViolation,
			wantReason: ReasonCustomCondition,
		},
		{
			name:   "unrecognized revert stays indeterminate",
			simErr: &chain.RevertError{Data: []byte{0xde, 0xad, 0xbe, 0xef}},
			want:   VerdictIndeterminate,
		},
		{
			name:   "node unavailable stays indeterminate",
			simErr: errors.Join(chain.ErrSimulationUnavailable, errors.New("dial tcp: connection refused")),
			want:   VerdictIndeterminate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := &fakeSimulator{results: []error{tt.simErr}}
			eval := pendingEvaluation(t, conditionedRole())

			NewResolver(sim, logger.Test(t)).Resolve(context.Background(), eval)

			result := eval.Results[0]
			require.Len(t, result.Verdicts, 1)
			assert.Equal(t, tt.want, result.Verdicts[0].Kind)
			if tt.want == VerdictConditionViolation {
				assert.Equal(t, tt.wantReason, result.Verdicts[0].Reason)
			}
			assert.Equal(t, tt.want, result.Aggregate.Kind)
			assert.False(t, result.Pending())
		})
	}
}

func Test_Resolver_RoutesThroughModifier(t *testing.T) {
	t.Parallel()

	sim := &fakeSimulator{}
	role := conditionedRole()
	eval := pendingEvaluation(t, role)

	NewResolver(sim, logger.Test(t)).Resolve(context.Background(), eval)

	require.Len(t, sim.calls, 1)
	msg := sim.calls[0]
	assert.Equal(t, testActor, msg.From)
	require.NotNil(t, msg.To)
	assert.Equal(t, testModifier, *msg.To)

	// The simulated call must be the role-routed wrapper, not the raw call.
	method, err := abis.Roles.MethodById(msg.Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "execTransactionWithRole", method.Name)

	args, err := method.Inputs.Unpack(msg.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, eval.Operations[0].Target, args[0])
	assert.Equal(t, role.Key, args[4])
	assert.Equal(t, true, args[5], "shouldRevert must be set so denials surface as typed reverts")
}

func Test_Resolver_SettledRolesUntouched(t *testing.T) {
	t.Parallel()

	sim := &fakeSimulator{}
	settled := vaultRole() // wildcarded, decided statically
	pending := conditionedRole()
	pending.Key = [32]byte{0x02}

	ops := []decode.Operation{{Target: testVault, Payload: transferPayload(t)}}
	eval := Evaluate(ops, testActor, []*Role{settled, pending})

	NewResolver(sim, logger.Test(t)).Resolve(context.Background(), eval)

	assert.Len(t, sim.calls, 1, "only the pending role should be simulated")
	assert.Equal(t, VerdictOk, eval.Results[0].Aggregate.Kind)
	assert.Equal(t, VerdictOk, eval.Results[1].Aggregate.Kind)
}
