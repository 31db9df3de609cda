package config

import (
	"sort"
	"sync/atomic"

	"DagPool/internal/types"
)

// WorkerInfo is how a worker is reached.
type WorkerInfo struct {
	Name     types.PublicKey // Name is the worker's ed25519 identity
	QUICAddr string          // QUICAddr is the worker's QUIC address
}

// WorkerCache maps (authority, worker id) to worker endpoints for one epoch.
// It is immutable once built; reconfiguration swaps in a new cache.
type WorkerCache struct {
	Epoch   uint64
	workers map[types.PublicKey]map[types.WorkerID]WorkerInfo
}

// NewWorkerCache copies workers into a new cache.
func NewWorkerCache(epoch uint64, workers map[types.PublicKey]map[types.WorkerID]WorkerInfo) *WorkerCache {
	cp := make(map[types.PublicKey]map[types.WorkerID]WorkerInfo, len(workers))
	for name, ws := range workers {
		inner := make(map[types.WorkerID]WorkerInfo, len(ws))
		for id, info := range ws {
			inner[id] = info
		}
		cp[name] = inner
	}

	return &WorkerCache{Epoch: epoch, workers: cp}
}

// Worker returns the worker id of authority, if known.
func (c *WorkerCache) Worker(authority types.PublicKey, id types.WorkerID) (WorkerInfo, bool) {
	info, ok := c.workers[authority][id]
	return info, ok
}

// Workers returns every worker of authority.
func (c *WorkerCache) Workers(authority types.PublicKey) map[types.WorkerID]WorkerInfo {
	return c.workers[authority]
}

// Peers returns the workers with the given id of every authority except
// self, ordered by name.
func (c *WorkerCache) Peers(self types.PublicKey, id types.WorkerID) []WorkerInfo {
	var peers []WorkerInfo

	for authority, ws := range c.workers {
		if authority == self {
			continue
		}
		if info, ok := ws[id]; ok {
			peers = append(peers, info)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Name.String() < peers[j].Name.String()
	})

	return peers
}

// IsPeer reports whether key is the worker with the given id of an
// authority other than self.
func (c *WorkerCache) IsPeer(self types.PublicKey, id types.WorkerID, key types.PublicKey) bool {
	for authority, ws := range c.workers {
		if authority == self {
			continue
		}
		if info, ok := ws[id]; ok && info.Name == key {
			return true
		}
	}

	return false
}

// SharedWorkerCache is a WorkerCache that readers load lock-free and
// reconfiguration replaces wholesale.
type SharedWorkerCache struct {
	current atomic.Pointer[WorkerCache]
}

// NewSharedWorkerCache wraps an initial cache.
func NewSharedWorkerCache(initial *WorkerCache) *SharedWorkerCache {
	s := &SharedWorkerCache{}
	s.current.Store(initial)

	return s
}

// Load returns the current cache.
func (s *SharedWorkerCache) Load() *WorkerCache {
	return s.current.Load()
}

// Swap installs next and returns the previous cache.
func (s *SharedWorkerCache) Swap(next *WorkerCache) *WorkerCache {
	return s.current.Swap(next)
}
