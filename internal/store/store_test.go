package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"DagPool/internal/storage"
	"DagPool/internal/types"
)

// newTestStorage opens a pebble store in a temp dir, closed on cleanup.
func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	s, err := storage.New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// testCertificate builds an unsigned certificate at round with one batch per worker.
func testCertificate(round uint64, workers ...types.WorkerID) *types.Certificate {
	h := types.Header{Round: round, Epoch: 1}
	h.Author[0] = 0xAB

	for i, w := range workers {
		b := types.Batch{Transactions: [][]byte{{byte(round), byte(i)}}}
		h.Payload = append(h.Payload, types.BatchRef{Digest: b.Digest(), WorkerID: w})
	}

	return &types.Certificate{Header: h, Signers: []byte{0x01}, Signature: []byte{0x02}}
}

func TestCertificateStoreReadAll(t *testing.T) {
	certs := NewCertificateStore(newTestStorage(t))

	c1 := testCertificate(1, 0)
	c2 := testCertificate(2, 1)
	require.NoError(t, certs.WriteAll([]*types.Certificate{c1, c2}))

	missing := types.CertificateDigest{0xFF}
	got, err := certs.ReadAll([]types.CertificateDigest{c2.Digest(), missing, c1.Digest()})
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.Equal(t, c2.Digest(), got[0].Digest())
	require.Nil(t, got[1])
	require.Equal(t, c1.Digest(), got[2].Digest())
}

func TestCertificateStoreDeleteAllIsIdempotent(t *testing.T) {
	certs := NewCertificateStore(newTestStorage(t))

	c := testCertificate(1, 0)
	require.NoError(t, certs.Write(c))

	ok, err := certs.Contains(c.Digest())
	require.NoError(t, err)
	require.True(t, ok)

	ids := []types.CertificateDigest{c.Digest(), {0xEE}}
	require.NoError(t, certs.DeleteAll(ids))
	require.NoError(t, certs.DeleteAll(ids))

	got, err := certs.Read(c.Digest())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCertificateStoreIterate(t *testing.T) {
	db := newTestStorage(t)
	certs := NewCertificateStore(db)
	headers := NewHeaderStore(db)

	c1 := testCertificate(1, 0)
	c2 := testCertificate(2, 0)
	require.NoError(t, certs.WriteAll([]*types.Certificate{c1, c2}))
	require.NoError(t, headers.Write(&c1.Header))

	seen := map[types.CertificateDigest]bool{}
	require.NoError(t, certs.Iterate(func(c *types.Certificate) error {
		seen[c.Digest()] = true
		return nil
	}))

	require.Len(t, seen, 2)
	require.True(t, seen[c1.Digest()])
	require.True(t, seen[c2.Digest()])
}

func TestHeaderStoreRemoveAll(t *testing.T) {
	headers := NewHeaderStore(newTestStorage(t))

	h := testCertificate(4, 0, 1).Header
	require.NoError(t, headers.Write(&h))

	got, err := headers.ReadAll([]types.HeaderDigest{h.Digest()})
	require.NoError(t, err)
	require.Equal(t, h.Digest(), got[0].Digest())

	require.NoError(t, headers.RemoveAll([]types.HeaderDigest{h.Digest()}))
	require.NoError(t, headers.RemoveAll([]types.HeaderDigest{h.Digest()}))

	got, err = headers.ReadAll([]types.HeaderDigest{h.Digest()})
	require.NoError(t, err)
	require.Nil(t, got[0])
}

func TestPayloadStoreKeysIncludeWorker(t *testing.T) {
	payload := NewPayloadStore(newTestStorage(t))

	d := types.BatchDigest{7}
	require.NoError(t, payload.Write(types.BatchRef{Digest: d, WorkerID: 0}))

	found, err := payload.ReadAll([]types.BatchRef{{Digest: d, WorkerID: 0}, {Digest: d, WorkerID: 1}})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, found)

	require.NoError(t, payload.RemoveAll([]types.BatchRef{{Digest: d, WorkerID: 0}, {Digest: d, WorkerID: 1}}))

	ok, err := payload.Contains(types.BatchRef{Digest: d, WorkerID: 0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBatchStore(t *testing.T) {
	batches := NewBatchStore(newTestStorage(t))

	b := &types.Batch{Transactions: [][]byte{[]byte("tx1"), []byte("tx2")}}
	d, err := batches.Write(b)
	require.NoError(t, err)
	require.Equal(t, b.Digest(), d)

	got, err := batches.Read(d)
	require.NoError(t, err)
	require.Equal(t, b.Transactions, got.Transactions)

	require.NoError(t, batches.RemoveAll([]types.BatchDigest{d, {0x01}}))

	got, err = batches.Read(d)
	require.NoError(t, err)
	require.Nil(t, got)
}

// failingBackend fails every mutation with errDisk.
type failingBackend struct {
	Backend
}

var errDisk = errors.New("disk full")

func (failingBackend) DeleteBatch([][]byte) error     { return errDisk }
func (failingBackend) DeleteBatchSync([][]byte) error { return errDisk }

func TestErrorCarriesStoreAndCause(t *testing.T) {
	db := failingBackend{Backend: newTestStorage(t)}

	err := NewHeaderStore(db).RemoveAll([]types.HeaderDigest{{1}})

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "header", storeErr.Store)
	require.Equal(t, "remove", storeErr.Op)
	require.ErrorIs(t, err, errDisk)

	err = NewCertificateStore(db).DeleteAll([]types.CertificateDigest{{1}})
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "certificate", storeErr.Store)
}
