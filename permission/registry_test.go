package permission

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisigkit/intent-engine/pkg/logger"
)

const registryRolesBody = `{
  "roles": [
    {
      "key": "0x0100000000000000000000000000000000000000000000000000000000000000",
      "members": ["0x3333333333333333333333333333333333333333"],
      "targets": [
        {
          "address": "0x1111111111111111111111111111111111111111",
          "clearance": "function",
          "executionOptions": "none",
          "functions": [
            {"selector": "0xa9059cbb", "executionOptions": "send", "wildcarded": true}
          ]
        }
      ],
      "multisend": ["0x5555555555555555555555555555555555555555"],
      "version": "2.1.0"
    }
  ]
}`

func Test_Registry_Roles(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, fmt.Sprintf("/v1/chains/1/modules/%s/roles", testModifier.Hex()), r.URL.Path)
		fmt.Fprint(w, registryRolesBody)
	}))
	defer srv.Close()

	reg := NewRegistry(srv.URL, srv.Client(), logger.Test(t))

	roles, err := reg.Roles(context.Background(), 1, testModifier)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	role := roles[0]
	assert.Equal(t, testModifier, role.Modifier)
	assert.Equal(t, [32]byte{0x01}, role.Key)
	assert.True(t, role.IsMember(testActor))
	assert.Equal(t, []string{testBatcher.Hex()}, hexAddrs(role.BatchTargets))
	require.NotNil(t, role.Version)
	assert.Equal(t, "2.1.0", role.Version.String())

	rule, ok := role.Targets[testVault]
	require.True(t, ok)
	assert.Equal(t, ClearanceFunction, rule.Clearance)
	fn, ok := rule.Functions[transferSel]
	require.True(t, ok)
	assert.True(t, fn.Wildcarded)
	assert.True(t, fn.ExecOptions.AllowsSend())

	// Second lookup must be served from cache.
	_, err = reg.Roles(context.Background(), 1, testModifier)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func Test_Registry_Roles_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, registryRolesBody)
	}))
	defer srv.Close()

	reg := NewRegistry(srv.URL, srv.Client(), logger.Test(t))

	roles, err := reg.Roles(context.Background(), 1, testModifier)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func Test_Registry_Roles_ClientErrorIsFinal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	reg := NewRegistry(srv.URL, srv.Client(), logger.Test(t))

	_, err := reg.Roles(context.Background(), 1, testModifier)
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, int32(1), hits.Load())
}

func Test_Registry_Roles_InvalidRecord(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"roles": [{"key": "0x01"}]}`)
	}))
	defer srv.Close()

	reg := NewRegistry(srv.URL, srv.Client(), logger.Test(t))

	_, err := reg.Roles(context.Background(), 1, testModifier)
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid role key")
}

func hexAddrs(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}

	return out
}
