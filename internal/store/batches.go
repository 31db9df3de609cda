package store

import (
	"fmt"

	"DagPool/internal/types"
)

const batchStoreName = "batch"

// BatchStore keeps sealed batches on a worker, by digest.
type BatchStore struct {
	db Backend
}

// NewBatchStore creates a batch store over db.
func NewBatchStore(db Backend) *BatchStore {
	return &BatchStore{db: db}
}

// Write stores a batch and returns its digest.
func (s *BatchStore) Write(b *types.Batch) (types.BatchDigest, error) {
	data := b.Encode()
	d := types.BatchDigest(types.HashBytes(data))

	if err := s.db.Set(batchKey(d), data); err != nil {
		return d, &Error{Store: batchStoreName, Op: "write", Err: err}
	}

	return d, nil
}

// Read returns the batch with the given digest, or nil.
func (s *BatchStore) Read(id types.BatchDigest) (*types.Batch, error) {
	v, err := s.db.Get(batchKey(id))
	if err != nil {
		return nil, &Error{Store: batchStoreName, Op: "read", Err: err}
	}
	if v == nil {
		return nil, nil
	}

	b, err := types.DecodeBatch(v)
	if err != nil {
		return nil, &Error{Store: batchStoreName, Op: "read", Err: fmt.Errorf("decode %s:\n%w", id.Short(), err)}
	}

	return b, nil
}

// RemoveAll removes batches. Absent ids are ignored.
func (s *BatchStore) RemoveAll(ids []types.BatchDigest) error {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = batchKey(id)
	}

	if err := s.db.DeleteBatch(keys); err != nil {
		return &Error{Store: batchStoreName, Op: "remove", Err: err}
	}

	return nil
}

func batchKey(id types.BatchDigest) []byte {
	return prefixed(prefixBatch, id[:])
}
