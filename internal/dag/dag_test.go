package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"DagPool/internal/config"
	"DagPool/internal/crypto"
	"DagPool/internal/types"
)

// cert builds an unsigned certificate by author at round with the given parents.
func cert(author byte, round uint64, parents ...*types.Certificate) *types.Certificate {
	h := types.Header{Round: round, Epoch: 1}
	h.Author[0] = author

	for _, p := range parents {
		h.Parents = append(h.Parents, p.Digest())
	}

	return &types.Certificate{Header: h}
}

func TestInsertAndChildren(t *testing.T) {
	d := New()

	a := cert(1, 1)
	b := cert(2, 1)
	c := cert(1, 2, a, b)

	for _, x := range []*types.Certificate{a, b, c} {
		added, err := d.Insert(x)
		require.NoError(t, err)
		require.True(t, added)
	}

	added, err := d.Insert(a)
	require.NoError(t, err)
	require.False(t, added)

	require.Equal(t, 3, d.Len())
	require.Equal(t, []types.CertificateDigest{c.Digest()}, d.Children(a.Digest()))

	got, ok := d.Get(c.Digest())
	require.True(t, ok)
	require.Same(t, c, got)
}

func TestChildInsertedBeforeParent(t *testing.T) {
	d := New()

	a := cert(1, 1)
	c := cert(1, 2, a)

	_, err := d.Insert(c)
	require.NoError(t, err)
	_, err = d.Insert(a)
	require.NoError(t, err)

	err = d.Remove(context.Background(), []types.CertificateDigest{a.Digest()})
	require.ErrorIs(t, err, ErrStillReferenced)
}

func TestRemoveRejectsLiveChildAtomically(t *testing.T) {
	d := New()

	a := cert(1, 1)
	b := cert(2, 1)
	c := cert(1, 2, a)

	for _, x := range []*types.Certificate{a, b, c} {
		_, err := d.Insert(x)
		require.NoError(t, err)
	}

	err := d.Remove(context.Background(), []types.CertificateDigest{b.Digest(), a.Digest()})
	require.ErrorIs(t, err, ErrStillReferenced)

	require.True(t, d.Contains(a.Digest()))
	require.True(t, d.Contains(b.Digest()))
	require.Equal(t, 3, d.Len())
}

func TestRemoveWithChildrenAndMissing(t *testing.T) {
	d := New()

	a := cert(1, 1)
	c := cert(1, 2, a)

	for _, x := range []*types.Certificate{a, c} {
		_, err := d.Insert(x)
		require.NoError(t, err)
	}

	ids := []types.CertificateDigest{a.Digest(), c.Digest(), {0xFF}}
	require.NoError(t, d.Remove(context.Background(), ids))
	require.Zero(t, d.Len())

	require.NoError(t, d.Remove(context.Background(), ids))
	require.Empty(t, d.Children(a.Digest()))
}

func TestRemoveHonoursCancelledContext(t *testing.T) {
	d := New()

	a := cert(1, 1)
	_, err := d.Insert(a)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, d.Remove(ctx, []types.CertificateDigest{a.Digest()}), context.Canceled)
	require.True(t, d.Contains(a.Digest()))
}

// testCommittee builds a committee of n authorities and returns their BLS keys by name.
func testCommittee(t *testing.T, n int) (*config.Committee, map[types.PublicKey]*crypto.KeyPair) {
	t.Helper()

	keys := make(map[types.PublicKey]*crypto.KeyPair, n)
	authorities := make([]*config.Authority, n)

	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)

		var name types.PublicKey
		name[0] = byte(i + 1)

		keys[name] = kp
		authorities[i] = &config.Authority{Name: name, BLSKey: kp.PublicKey()}
	}

	return config.NewCommittee(1, authorities), keys
}

// certify has the first signers members of the committee sign h.
func certify(t *testing.T, c *config.Committee, keys map[types.PublicKey]*crypto.KeyPair, h types.Header, signers int) *types.Certificate {
	t.Helper()

	digest := h.Digest()
	votes := make(map[int][]byte, signers)

	for name, kp := range keys {
		if len(votes) == signers {
			break
		}
		votes[c.Index(name)] = kp.Sign(digest[:])
	}

	cert, err := types.Certify(h, votes, c.Size())
	require.NoError(t, err)

	return cert
}

func TestInsertVerifiesAgainstCommittee(t *testing.T) {
	committee, keys := testCommittee(t, 4)
	d := New(WithCommittee(committee))

	h := types.Header{Author: types.PublicKey{1}, Round: 1, Epoch: 1}

	added, err := d.Insert(certify(t, committee, keys, h, 3))
	require.NoError(t, err)
	require.True(t, added)

	h.Round = 2
	_, err = d.Insert(certify(t, committee, keys, h, 2))
	require.ErrorIs(t, err, types.ErrNoQuorum)

	h.Epoch = 9
	_, err = d.Insert(certify(t, committee, keys, h, 3))
	require.ErrorIs(t, err, ErrWrongEpoch)

	h.Epoch = 1
	h.Author = types.PublicKey{0x77}
	_, err = d.Insert(certify(t, committee, keys, h, 3))
	require.ErrorIs(t, err, ErrUnknownAuthor)

	require.Equal(t, 1, d.Len())
}
