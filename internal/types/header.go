package types

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// WorkerID identifies one of an authority's workers.
type WorkerID uint32

// BatchRef is a batch included in a header together with the worker holding it.
type BatchRef struct {
	Digest   BatchDigest
	WorkerID WorkerID
}

// Header is an authority's proposal for one round of the DAG.
type Header struct {
	Author  PublicKey           // Author is the proposing authority
	Round   uint64              // Round is the DAG round
	Epoch   uint64              // Epoch is the committee epoch
	Payload []BatchRef          // Payload lists the batches, in proposal order
	Parents []CertificateDigest // Parents are certificates from Round-1
}

// Digest hashes the header fields in a fixed order.
func (h *Header) Digest() HeaderDigest {
	hasher := blake3.New()

	buf := make([]byte, 0, 8)
	hasher.Write(h.Author[:])
	hasher.Write(binary.BigEndian.AppendUint64(buf[:0], h.Round))
	hasher.Write(binary.BigEndian.AppendUint64(buf[:0], h.Epoch))

	hasher.Write(binary.BigEndian.AppendUint32(buf[:0], uint32(len(h.Payload))))
	for _, ref := range h.Payload {
		hasher.Write(ref.Digest[:])
		hasher.Write(binary.BigEndian.AppendUint32(buf[:0], uint32(ref.WorkerID)))
	}

	hasher.Write(binary.BigEndian.AppendUint32(buf[:0], uint32(len(h.Parents))))
	for _, p := range h.Parents {
		hasher.Write(p[:])
	}

	var d HeaderDigest
	hasher.Sum(d[:0])

	return d
}
