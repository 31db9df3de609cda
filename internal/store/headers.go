package store

import (
	"fmt"

	"DagPool/internal/types"
)

const headerStoreName = "header"

// HeaderStore keeps headers by digest.
type HeaderStore struct {
	db Backend
}

// NewHeaderStore creates a header store over db.
func NewHeaderStore(db Backend) *HeaderStore {
	return &HeaderStore{db: db}
}

// Write stores a header under its digest.
func (s *HeaderStore) Write(h *types.Header) error {
	if err := s.db.Set(headerKey(h.Digest()), types.EncodeHeader(h)); err != nil {
		return &Error{Store: headerStoreName, Op: "write", Err: err}
	}

	return nil
}

// ReadAll returns one entry per id, nil where the header is absent.
func (s *HeaderStore) ReadAll(ids []types.HeaderDigest) ([]*types.Header, error) {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = headerKey(id)
	}

	values, err := s.db.GetMany(keys)
	if err != nil {
		return nil, &Error{Store: headerStoreName, Op: "read", Err: err}
	}

	headers := make([]*types.Header, len(ids))
	for i, v := range values {
		if v == nil {
			continue
		}

		h, err := types.DecodeHeader(v)
		if err != nil {
			return nil, &Error{
				Store: headerStoreName,
				Op:    "read",
				Err:   fmt.Errorf("decode %s:\n%w", ids[i].Short(), err),
			}
		}
		headers[i] = h
	}

	return headers, nil
}

// RemoveAll removes headers. Absent ids are ignored.
func (s *HeaderStore) RemoveAll(ids []types.HeaderDigest) error {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = headerKey(id)
	}

	if err := s.db.DeleteBatch(keys); err != nil {
		return &Error{Store: headerStoreName, Op: "remove", Err: err}
	}

	return nil
}

func headerKey(id types.HeaderDigest) []byte {
	return prefixed(prefixHeader, id[:])
}
