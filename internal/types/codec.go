package types

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Wire and storage layout, in flatbuffers schema notation:
//
//	table Tx                   { data:[ubyte]; }
//	table Batch                { transactions:[Tx]; }
//	table BatchRef             { digest:[ubyte]; worker_id:uint32; }
//	table Header               { author:[ubyte]; round:uint64; epoch:uint64;
//	                             payload:[BatchRef]; parents:[ubyte]; }
//	table Certificate          { header:Header; signers:[ubyte]; signature:[ubyte]; }
//	table WorkerPrimaryMessage { kind:ubyte; digest:[ubyte]; worker_id:uint32; }
//	table DeleteBatches        { digests:[ubyte]; }
//
// Digest lists (parents, deleted batches) are stored as one concatenated byte vector.

// ErrMalformed is returned when a buffer cannot be decoded.
var ErrMalformed = errors.New("malformed encoding")

// table wraps a flatbuffers table with slot-indexed accessors.
type table struct {
	flatbuffers.Table
}

// rootTable returns the root table of a finished buffer.
func rootTable(buf []byte) table {
	n := flatbuffers.GetUOffsetT(buf)
	return table{flatbuffers.Table{Bytes: buf, Pos: n}}
}

// field returns the offset of slot, or 0 if absent.
func (t *table) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (t *table) vecBytes(slot int) []byte {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	return t.ByteVector(o + t.Pos)
}

func (t *table) u64(slot int) uint64 {
	o := t.field(slot)
	if o == 0 {
		return 0
	}
	return t.GetUint64(o + t.Pos)
}

func (t *table) u32(slot int) uint32 {
	o := t.field(slot)
	if o == 0 {
		return 0
	}
	return t.GetUint32(o + t.Pos)
}

func (t *table) u8(slot int) byte {
	o := t.field(slot)
	if o == 0 {
		return 0
	}
	return t.GetByte(o + t.Pos)
}

// child returns the sub-table at slot.
func (t *table) child(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	pos := t.Indirect(o + t.Pos)
	return table{flatbuffers.Table{Bytes: t.Bytes, Pos: pos}}, true
}

// children returns the vector of sub-tables at slot. The declared length
// must fit in the remaining buffer.
func (t *table) children(slot int) ([]table, error) {
	o := t.field(slot)
	if o == 0 {
		return nil, nil
	}

	n := t.VectorLen(o)
	start := t.Vector(o)

	if n < 0 || int(start) > len(t.Bytes) ||
		uint64(n)*flatbuffers.SizeUOffsetT > uint64(len(t.Bytes))-uint64(start) {
		return nil, fmt.Errorf("%w: vector of %d entries exceeds buffer", ErrMalformed, n)
	}

	out := make([]table, n)

	for j := 0; j < n; j++ {
		pos := t.Indirect(start + flatbuffers.UOffsetT(j)*flatbuffers.SizeUOffsetT)
		out[j] = table{flatbuffers.Table{Bytes: t.Bytes, Pos: pos}}
	}

	return out, nil
}

// decodeRoot runs fn on the root table, turning out-of-range panics from
// truncated buffers into ErrMalformed.
func decodeRoot(buf []byte, fn func(t table) error) (err error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return fmt.Errorf("%w: buffer of %d bytes", ErrMalformed, len(buf))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	return fn(rootTable(buf))
}

// offsetVector builds a vector of table offsets.
func offsetVector(b *flatbuffers.Builder, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(flatbuffers.SizeUOffsetT, len(offsets), flatbuffers.SizeUOffsetT)
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	return b.EndVector(len(offsets))
}

// Encode serialises the batch.
func (b *Batch) Encode() []byte {
	size := 64
	for _, tx := range b.Transactions {
		size += len(tx) + 16
	}

	builder := flatbuffers.NewBuilder(size)

	txs := make([]flatbuffers.UOffsetT, len(b.Transactions))
	for i, tx := range b.Transactions {
		data := builder.CreateByteVector(tx)
		builder.StartObject(1)
		builder.PrependUOffsetTSlot(0, data, 0)
		txs[i] = builder.EndObject()
	}
	vec := offsetVector(builder, txs)

	builder.StartObject(1)
	builder.PrependUOffsetTSlot(0, vec, 0)
	builder.Finish(builder.EndObject())

	return builder.FinishedBytes()
}

// DecodeBatch parses a batch produced by Encode.
func DecodeBatch(buf []byte) (*Batch, error) {
	batch := &Batch{}

	err := decodeRoot(buf, func(t table) error {
		txs, err := t.children(0)
		if err != nil {
			return err
		}

		for _, tx := range txs {
			batch.Transactions = append(batch.Transactions, append([]byte(nil), tx.vecBytes(0)...))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// buildHeader writes h into builder and returns its offset.
func buildHeader(b *flatbuffers.Builder, h *Header) flatbuffers.UOffsetT {
	refs := make([]flatbuffers.UOffsetT, len(h.Payload))
	for i, ref := range h.Payload {
		digest := b.CreateByteVector(ref.Digest[:])
		b.StartObject(2)
		b.PrependUOffsetTSlot(0, digest, 0)
		b.PrependUint32Slot(1, uint32(ref.WorkerID), 0)
		refs[i] = b.EndObject()
	}
	payload := offsetVector(b, refs)

	parentBytes := make([]byte, 0, len(h.Parents)*DigestSize)
	for _, p := range h.Parents {
		parentBytes = append(parentBytes, p[:]...)
	}
	parents := b.CreateByteVector(parentBytes)
	author := b.CreateByteVector(h.Author[:])

	b.StartObject(5)
	b.PrependUOffsetTSlot(0, author, 0)
	b.PrependUint64Slot(1, h.Round, 0)
	b.PrependUint64Slot(2, h.Epoch, 0)
	b.PrependUOffsetTSlot(3, payload, 0)
	b.PrependUOffsetTSlot(4, parents, 0)

	return b.EndObject()
}

// readHeader fills a Header from its table.
func readHeader(t table) (Header, error) {
	var h Header

	if n := copy(h.Author[:], t.vecBytes(0)); n != len(h.Author) {
		return h, fmt.Errorf("%w: author of %d bytes", ErrMalformed, n)
	}

	h.Round = t.u64(1)
	h.Epoch = t.u64(2)

	refs, err := t.children(3)
	if err != nil {
		return h, err
	}

	for _, ref := range refs {
		var br BatchRef
		if n := copy(br.Digest[:], ref.vecBytes(0)); n != DigestSize {
			return h, fmt.Errorf("%w: batch digest of %d bytes", ErrMalformed, n)
		}
		br.WorkerID = WorkerID(ref.u32(1))
		h.Payload = append(h.Payload, br)
	}

	parents, err := digestsFromBytes(t.vecBytes(4))
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, p := range parents {
		h.Parents = append(h.Parents, CertificateDigest(p))
	}

	return h, nil
}

// EncodeHeader serialises a header.
func EncodeHeader(h *Header) []byte {
	b := flatbuffers.NewBuilder(256)
	b.Finish(buildHeader(b, h))
	return b.FinishedBytes()
}

// DecodeHeader parses a header produced by EncodeHeader.
func DecodeHeader(buf []byte) (*Header, error) {
	var h Header

	err := decodeRoot(buf, func(t table) error {
		var err error
		h, err = readHeader(t)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &h, nil
}

// EncodeCertificate serialises a certificate with its header inline.
func EncodeCertificate(c *Certificate) []byte {
	b := flatbuffers.NewBuilder(512)

	header := buildHeader(b, &c.Header)
	signers := b.CreateByteVector(c.Signers)
	signature := b.CreateByteVector(c.Signature)

	b.StartObject(3)
	b.PrependUOffsetTSlot(0, header, 0)
	b.PrependUOffsetTSlot(1, signers, 0)
	b.PrependUOffsetTSlot(2, signature, 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// DecodeCertificate parses a certificate produced by EncodeCertificate.
func DecodeCertificate(buf []byte) (*Certificate, error) {
	c := &Certificate{}

	err := decodeRoot(buf, func(t table) error {
		ht, ok := t.child(0)
		if !ok {
			return fmt.Errorf("%w: certificate without header", ErrMalformed)
		}

		h, err := readHeader(ht)
		if err != nil {
			return err
		}

		c.Header = h
		c.Signers = append([]byte(nil), t.vecBytes(1)...)
		c.Signature = append([]byte(nil), t.vecBytes(2)...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// EncodeWorkerPrimaryMessage serialises a worker report.
func EncodeWorkerPrimaryMessage(m *WorkerPrimaryMessage) []byte {
	b := flatbuffers.NewBuilder(64)

	digest := b.CreateByteVector(m.Digest[:])

	b.StartObject(3)
	b.PrependByteSlot(0, byte(m.Kind), 0)
	b.PrependUOffsetTSlot(1, digest, 0)
	b.PrependUint32Slot(2, uint32(m.WorkerID), 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// DecodeWorkerPrimaryMessage parses a worker report.
func DecodeWorkerPrimaryMessage(buf []byte) (*WorkerPrimaryMessage, error) {
	m := &WorkerPrimaryMessage{}

	err := decodeRoot(buf, func(t table) error {
		m.Kind = WorkerMessageKind(t.u8(0))
		if m.Kind != OurBatch && m.Kind != OthersBatch {
			return fmt.Errorf("%w: message kind %d", ErrMalformed, m.Kind)
		}

		if n := copy(m.Digest[:], t.vecBytes(1)); n != DigestSize {
			return fmt.Errorf("%w: digest of %d bytes", ErrMalformed, n)
		}

		m.WorkerID = WorkerID(t.u32(2))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// DeleteBatchesRequest asks a worker to drop the listed batches.
type DeleteBatchesRequest struct {
	Digests []BatchDigest
}

// EncodeDeleteBatchesRequest serialises a delete request.
func EncodeDeleteBatchesRequest(r *DeleteBatchesRequest) []byte {
	raw := make([]byte, 0, len(r.Digests)*DigestSize)
	for _, d := range r.Digests {
		raw = append(raw, d[:]...)
	}

	b := flatbuffers.NewBuilder(len(raw) + 32)
	digests := b.CreateByteVector(raw)

	b.StartObject(1)
	b.PrependUOffsetTSlot(0, digests, 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

// DecodeDeleteBatchesRequest parses a delete request.
func DecodeDeleteBatchesRequest(buf []byte) (*DeleteBatchesRequest, error) {
	r := &DeleteBatchesRequest{}

	err := decodeRoot(buf, func(t table) error {
		digests, err := digestsFromBytes(t.vecBytes(0))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		r.Digests = make([]BatchDigest, len(digests))
		for i, d := range digests {
			r.Digests[i] = BatchDigest(d)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}
