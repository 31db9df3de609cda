// Package store holds the typed stores a primary and a worker keep on disk:
// certificates, headers, payload markers and batches.
package store

import (
	"fmt"

	"DagPool/internal/storage"
)

// Key prefixes, one per store sharing the same database.
var (
	prefixCertificate = []byte("c:") // c:<certificate digest> -> certificate bytes
	prefixHeader      = []byte("h:") // h:<header digest> -> header bytes
	prefixPayload     = []byte("p:") // p:<batch digest><worker id> -> payload token
	prefixBatch       = []byte("b:") // b:<batch digest> -> batch bytes
)

// Backend is the key-value store the typed stores are built on.
// It is satisfied by *storage.Storage.
type Backend interface {
	Get(key []byte) ([]byte, error)
	GetMany(keys [][]byte) ([][]byte, error)
	Set(key, value []byte) error
	SetBatch(pairs []storage.KeyValue) error
	DeleteBatch(keys [][]byte) error
	DeleteBatchSync(keys [][]byte) error
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

// Error is a storage-layer failure of one store operation.
type Error struct {
	Store string // Store names the failing store
	Op    string // Op is the operation (read, write, remove, delete)
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store %s:\n%v", e.Store, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// prefixed builds prefix||suffix in a fresh slice.
func prefixed(prefix, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}
