package types

import (
	"encoding/binary"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/stretchr/testify/require"

	"DagPool/internal/crypto"
)

// testHeader builds a header with one batch per given worker.
func testHeader(round uint64, workers ...WorkerID) Header {
	h := Header{Round: round, Epoch: 1}
	h.Author[0] = 0xAA

	for i, w := range workers {
		b := Batch{Transactions: [][]byte{{byte(round), byte(i)}}}
		h.Payload = append(h.Payload, BatchRef{Digest: b.Digest(), WorkerID: w})
	}

	return h
}

func TestHeaderDigestCoversFields(t *testing.T) {
	h := testHeader(3, 0, 1)
	base := h.Digest()

	require.Equal(t, base, h.Digest())

	h.Payload[1].WorkerID = 2
	require.NotEqual(t, base, h.Digest())

	h = testHeader(3, 0, 1)
	h.Parents = append(h.Parents, CertificateDigest{1})
	require.NotEqual(t, base, h.Digest())
}

func TestCertificateEncodingKeepsDigest(t *testing.T) {
	h := testHeader(7, 0, 1, 1)
	h.Parents = []CertificateDigest{{1}, {2}}

	cert := &Certificate{Header: h, Signers: []byte{0x07}, Signature: []byte("sig")}

	decoded, err := DecodeCertificate(EncodeCertificate(cert))
	require.NoError(t, err)
	require.Equal(t, cert.Digest(), decoded.Digest())
	require.Equal(t, cert.Header.Payload, decoded.Header.Payload)
	require.Equal(t, cert.Signature, decoded.Signature)
}

func TestHeaderEncoding(t *testing.T) {
	h := testHeader(2, 4)

	decoded, err := DecodeHeader(EncodeHeader(&h))
	require.NoError(t, err)
	require.Equal(t, h.Digest(), decoded.Digest())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeCertificate([]byte{1, 2})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeCertificate([]byte{0xFF, 0xFF, 0xFF, 0x7F, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeWorkerPrimaryMessage(EncodeHeader(&Header{}))
	require.ErrorIs(t, err, ErrMalformed)
}

// patchVectorLen overwrites the length of the table vector at slot of buf's root.
func patchVectorLen(buf []byte, slot int, n uint32) {
	root := rootTable(buf)
	lenPos := root.Vector(root.field(slot)) - flatbuffers.SizeUOffsetT
	binary.LittleEndian.PutUint32(buf[lenPos:], n)
}

func TestDecodeRejectsOversizedVector(t *testing.T) {
	for _, n := range []uint32{1 << 24, 0x7FFFFFFF, 0xFFFFFFFF} {
		buf := (&Batch{Transactions: [][]byte{[]byte("x")}}).Encode()
		patchVectorLen(buf, 0, n)

		_, err := DecodeBatch(buf)
		require.ErrorIs(t, err, ErrMalformed, "length %d", n)
	}

	h := testHeader(1, 0, 1)
	buf := EncodeHeader(&h)
	patchVectorLen(buf, 3, 1<<24)

	_, err := DecodeHeader(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBatchEncoding(t *testing.T) {
	b := &Batch{Transactions: [][]byte{[]byte("tx1"), []byte("tx2")}}

	decoded, err := DecodeBatch(b.Encode())
	require.NoError(t, err)
	require.Equal(t, b.Transactions, decoded.Transactions)
	require.Equal(t, b.Digest(), decoded.Digest())
}

func TestWorkerPrimaryMessageEncoding(t *testing.T) {
	msg := &WorkerPrimaryMessage{Kind: OurBatch, Digest: BatchDigest{9}, WorkerID: 3}

	decoded, err := DecodeWorkerPrimaryMessage(EncodeWorkerPrimaryMessage(msg))
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestDeleteBatchesRequestEncoding(t *testing.T) {
	req := &DeleteBatchesRequest{Digests: []BatchDigest{{1}, {2}, {3}}}

	decoded, err := DecodeDeleteBatchesRequest(EncodeDeleteBatchesRequest(req))
	require.NoError(t, err)
	require.Equal(t, req.Digests, decoded.Digests)

	empty, err := DecodeDeleteBatchesRequest(EncodeDeleteBatchesRequest(&DeleteBatchesRequest{}))
	require.NoError(t, err)
	require.Empty(t, empty.Digests)
}

func TestCertifyAndVerify(t *testing.T) {
	const committeeSize = 4

	keys := make([][]byte, committeeSize)
	pairs := make([]*crypto.KeyPair, committeeSize)
	for i := range pairs {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		pairs[i] = kp
		keys[i] = kp.PublicKey()
	}

	h := testHeader(1, 0)
	digest := h.Digest()

	votes := map[int][]byte{}
	for _, i := range []int{0, 2, 3} {
		votes[i] = pairs[i].Sign(digest[:])
	}

	cert, err := Certify(h, votes, committeeSize)
	require.NoError(t, err)
	require.NoError(t, cert.Verify(keys, 3))

	require.ErrorIs(t, cert.Verify(keys, 4), ErrNoQuorum)

	cert.Header.Round++
	require.ErrorIs(t, cert.Verify(keys, 3), ErrBadSignature)
}
