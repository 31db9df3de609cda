package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const (
	// maxFrameSize is the maximum allowed frame size on the wire (16 MB).
	maxFrameSize = 16 << 20

	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4

	// headerSize is kind + flags.
	headerSize = 2

	// compressThreshold is the payload size above which frames are zstd-compressed.
	compressThreshold = 4 << 10

	// flagZstd marks a zstd-compressed payload.
	flagZstd = 1 << 0
)

// Kind identifies the message carried by a frame.
type Kind uint8

const (
	// KindWorkerPrimary carries a types.WorkerPrimaryMessage from a worker to its primary.
	KindWorkerPrimary Kind = iota + 1

	// KindDeleteBatches carries a types.DeleteBatchesRequest from a primary to a worker.
	KindDeleteBatches

	// KindDeleteBatchesAck acknowledges a delete request. Empty payload.
	KindDeleteBatchesAck

	// KindError answers a request that failed. The payload is the error text.
	KindError

	// KindBatch carries an encoded types.Batch between workers of the same id.
	KindBatch
)

func (k Kind) String() string {
	switch k {
	case KindWorkerPrimary:
		return "worker_primary"
	case KindDeleteBatches:
		return "delete_batches"
	case KindDeleteBatchesAck:
		return "delete_batches_ack"
	case KindError:
		return "error"
	case KindBatch:
		return "batch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is one message on a stream.
type Frame struct {
	Kind    Kind
	Payload []byte
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameSize))
)

// writeFrame writes a length-prefixed frame.
// Format: [4 bytes big-endian length] [kind] [flags] [payload]
func writeFrame(w io.Writer, f Frame) error {
	var flags byte

	payload := f.Payload
	if len(payload) > compressThreshold {
		payload = encoder.EncodeAll(payload, nil)
		flags |= flagZstd
	}

	size := headerSize + len(payload)
	if size > maxFrameSize {
		return fmt.Errorf("frame too large: %d > %d", size, maxFrameSize)
	}

	buf := make([]byte, lengthPrefixSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	buf[lengthPrefixSize] = byte(f.Kind)
	buf[lengthPrefixSize+1] = flags
	copy(buf[lengthPrefixSize+headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame:\n%w", err)
	}

	return nil
}

// readFrame reads one length-prefixed frame, decompressing if flagged.
func readFrame(r io.Reader) (Frame, error) {
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return Frame{}, fmt.Errorf("read length:\n%w", err)
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size < headerSize || size > maxFrameSize {
		return Frame{}, fmt.Errorf("invalid frame size %d", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return Frame{}, fmt.Errorf("read frame:\n%w", err)
	}

	f := Frame{Kind: Kind(data[0]), Payload: data[headerSize:]}

	if data[1]&flagZstd != 0 {
		payload, err := decoder.DecodeAll(f.Payload, nil)
		if err != nil {
			return Frame{}, fmt.Errorf("decompress %s frame:\n%w", f.Kind, err)
		}
		f.Payload = payload
	}

	return f, nil
}
