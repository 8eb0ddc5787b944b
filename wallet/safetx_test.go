package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisigkit/intent-engine/decode"
)

var testSafe = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func testOp() decode.Operation {
	return decode.Operation{
		Target:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:   big.NewInt(42),
		Payload: []byte{0xa9, 0x05, 0x9c, 0xbb},
	}
}

func Test_SafeTx_Hash(t *testing.T) {
	t.Parallel()

	tx := NewSafeTx(testOp(), 7)

	hash, err := tx.Hash(1, testSafe)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	// The digest is deterministic and sensitive to every hashed field.
	again, err := tx.Hash(1, testSafe)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	bumped := NewSafeTx(testOp(), 8)
	other, err := bumped.Hash(1, testSafe)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)

	crossChain, err := tx.Hash(5, testSafe)
	require.NoError(t, err)
	assert.NotEqual(t, hash, crossChain)
}

func Test_SafeTx_Hash_NilValue(t *testing.T) {
	t.Parallel()

	op := testOp()
	op.Value = nil
	tx := NewSafeTx(op, 0)

	_, err := tx.Hash(1, testSafe)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.Value.Int64())
}

func Test_SignAndRecover(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewLocalSigner(key, 1, nil)

	hash, err := NewSafeTx(testOp(), 0).Hash(1, testSafe)
	require.NoError(t, err)

	sig, err := signer.SignHash(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := RecoverSigner(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func Test_ValidateSignature(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewLocalSigner(key, 1, nil)

	hash, err := NewSafeTx(testOp(), 0).Hash(1, testSafe)
	require.NoError(t, err)
	sig, err := signer.SignHash(context.Background(), hash)
	require.NoError(t, err)

	t.Run("owner signature is attributed", func(t *testing.T) {
		t.Parallel()

		got, err := ValidateSignature(hash, sig, []common.Address{signer.Address()})
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), got.Signer)
		assert.Equal(t, sig, got.Bytes)
	})

	t.Run("non-owner signature is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ValidateSignature(hash, sig, []common.Address{testSafe})
		require.Error(t, err)
		assert.ErrorContains(t, err, "not a wallet owner")
	})

	t.Run("truncated signature is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ValidateSignature(hash, sig[:64], []common.Address{signer.Address()})
		require.Error(t, err)
		assert.ErrorContains(t, err, "must be 65 bytes")
	})
}

func Test_AssembleSignatures(t *testing.T) {
	t.Parallel()

	low := Signature{
		Signer: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Bytes:  []byte{0x01},
	}
	high := Signature{
		Signer: common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		Bytes:  []byte{0xff},
	}

	// Order in equals sorted order out, duplicates collapsed.
	blob := AssembleSignatures([]Signature{high, low, high})
	assert.Equal(t, []byte{0x01, 0xff}, blob)
}
