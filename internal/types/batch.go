package types

// Batch is a list of transactions sealed by a worker.
type Batch struct {
	Transactions [][]byte
}

// Digest is the blake3 hash of the encoded batch.
func (b *Batch) Digest() BatchDigest {
	return BatchDigest(HashBytes(b.Encode()))
}

// PayloadToken marks a (batch, worker) pair as accounted for by the primary.
// It carries no batch bytes.
type PayloadToken struct{}

// payloadTokenValue is the stored representation of a PayloadToken.
var payloadTokenValue = []byte{1}

// Bytes returns the stored form of the token.
func (PayloadToken) Bytes() []byte {
	return payloadTokenValue
}

// WorkerMessageKind tells the primary where a digest came from.
type WorkerMessageKind uint8

const (
	// OurBatch is a batch sealed by one of this authority's workers.
	OurBatch WorkerMessageKind = iota + 1

	// OthersBatch is a batch received from another authority's worker.
	OthersBatch
)

func (k WorkerMessageKind) String() string {
	switch k {
	case OurBatch:
		return "our_batch"
	case OthersBatch:
		return "others_batch"
	default:
		return "unknown"
	}
}

// WorkerPrimaryMessage reports a sealed batch digest to the primary.
type WorkerPrimaryMessage struct {
	Kind     WorkerMessageKind
	Digest   BatchDigest
	WorkerID WorkerID
}
