package store

import (
	"encoding/binary"

	"DagPool/internal/storage"
	"DagPool/internal/types"
)

const payloadStoreName = "payload"

// PayloadStore keeps a PayloadToken per (batch digest, worker id).
type PayloadStore struct {
	db Backend
}

// NewPayloadStore creates a payload store over db.
func NewPayloadStore(db Backend) *PayloadStore {
	return &PayloadStore{db: db}
}

// Write records that the batch held by worker is accounted for.
func (s *PayloadStore) Write(ref types.BatchRef) error {
	if err := s.db.Set(payloadKey(ref), types.PayloadToken{}.Bytes()); err != nil {
		return &Error{Store: payloadStoreName, Op: "write", Err: err}
	}

	return nil
}

// WriteAll records several markers atomically.
func (s *PayloadStore) WriteAll(refs []types.BatchRef) error {
	pairs := make([]storage.KeyValue, len(refs))
	for i, ref := range refs {
		pairs[i] = storage.KeyValue{Key: payloadKey(ref), Value: types.PayloadToken{}.Bytes()}
	}

	if err := s.db.SetBatch(pairs); err != nil {
		return &Error{Store: payloadStoreName, Op: "write", Err: err}
	}

	return nil
}

// ReadAll returns one entry per ref, false where no marker is stored.
func (s *PayloadStore) ReadAll(refs []types.BatchRef) ([]bool, error) {
	keys := make([][]byte, len(refs))
	for i, ref := range refs {
		keys[i] = payloadKey(ref)
	}

	values, err := s.db.GetMany(keys)
	if err != nil {
		return nil, &Error{Store: payloadStoreName, Op: "read", Err: err}
	}

	found := make([]bool, len(refs))
	for i, v := range values {
		found[i] = v != nil
	}

	return found, nil
}

// Contains reports whether a marker is stored for ref.
func (s *PayloadStore) Contains(ref types.BatchRef) (bool, error) {
	found, err := s.ReadAll([]types.BatchRef{ref})
	if err != nil {
		return false, err
	}

	return found[0], nil
}

// RemoveAll removes markers. Absent refs are ignored.
func (s *PayloadStore) RemoveAll(refs []types.BatchRef) error {
	keys := make([][]byte, len(refs))
	for i, ref := range refs {
		keys[i] = payloadKey(ref)
	}

	if err := s.db.DeleteBatch(keys); err != nil {
		return &Error{Store: payloadStoreName, Op: "remove", Err: err}
	}

	return nil
}

// payloadKey is p:<digest><worker id big endian>.
func payloadKey(ref types.BatchRef) []byte {
	key := make([]byte, len(prefixPayload)+types.DigestSize+4)
	copy(key, prefixPayload)
	copy(key[len(prefixPayload):], ref.Digest[:])
	binary.BigEndian.PutUint32(key[len(prefixPayload)+types.DigestSize:], uint32(ref.WorkerID))
	return key
}
