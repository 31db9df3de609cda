package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("header digest")
	sig := kp.Sign(msg)

	require.Len(t, sig, SignatureSize)
	require.Len(t, kp.PublicKey(), PublicKeySize)
	require.True(t, Verify(sig, msg, kp.PublicKey()))
	require.False(t, Verify(sig, []byte("other"), kp.PublicKey()))
}

func TestDeriveIsDeterministic(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a, err := DeriveFromED25519(priv)
	require.NoError(t, err)
	b, err := DeriveFromED25519(priv)
	require.NoError(t, err)

	require.Equal(t, a.PublicKey(), b.PublicKey())
}

func TestAggregateVerify(t *testing.T) {
	msg := []byte("certificate")

	var sigs, pks [][]byte
	for i := 0; i < 3; i++ {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		sigs = append(sigs, kp.Sign(msg))
		pks = append(pks, kp.PublicKey())
	}

	agg, err := Aggregate(sigs)
	require.NoError(t, err)

	require.True(t, VerifyAggregated(agg, msg, pks))
	require.False(t, VerifyAggregated(agg, msg, pks[:2]))

	_, err = Aggregate(nil)
	require.Error(t, err)
}

func TestSignerBitmap(t *testing.T) {
	bitmap := SignerBitmap([]int{0, 3, 9, 42}, 10)

	require.Len(t, bitmap, 2)
	require.Equal(t, []int{0, 3, 9}, Signers(bitmap))
}
