package primary

import (
	"errors"
	"fmt"

	"DagPool/internal/config"
	"DagPool/internal/logger"
	"DagPool/internal/metrics"
	"DagPool/internal/network"
	"DagPool/internal/store"
	"DagPool/internal/types"
)

// ErrNotOurWorker means a report came from a peer that is not one of this
// authority's workers.
var ErrNotOurWorker = errors.New("sender is not one of our workers")

// WorkerMessageHandler records batch digests reported by our workers as
// payload markers, so headers can reference them.
type WorkerMessageHandler struct {
	name        types.PublicKey
	workerCache *config.SharedWorkerCache
	payload     *store.PayloadStore
}

// NewWorkerMessageHandler creates a handler for the primary called name.
func NewWorkerMessageHandler(name types.PublicKey, workerCache *config.SharedWorkerCache, payload *store.PayloadStore) *WorkerMessageHandler {
	return &WorkerMessageHandler{
		name:        name,
		workerCache: workerCache,
		payload:     payload,
	}
}

// HandleMessage is the network.Node message callback.
func (h *WorkerMessageHandler) HandleMessage(p *network.Peer, f network.Frame) {
	if f.Kind != network.KindWorkerPrimary {
		logger.Debug("unexpected frame from worker", "peer", p.PublicKey().Short(), "kind", f.Kind)
		return
	}

	msg, err := types.DecodeWorkerPrimaryMessage(f.Payload)
	if err != nil {
		logger.Warn("bad worker message", "peer", p.PublicKey().Short(), "error", err)
		return
	}

	if err := h.Process(p.PublicKey(), msg); err != nil {
		logger.Warn("worker message rejected", "peer", p.PublicKey().Short(), "error", err)
	}
}

// Process records msg, sent by from.
func (h *WorkerMessageHandler) Process(from types.PublicKey, msg *types.WorkerPrimaryMessage) error {
	info, ok := h.workerCache.Load().Worker(h.name, msg.WorkerID)
	if !ok || info.Name != from {
		return fmt.Errorf("%w: %s claims worker %d", ErrNotOurWorker, from.Short(), msg.WorkerID)
	}

	if err := h.payload.Write(types.BatchRef{Digest: msg.Digest, WorkerID: msg.WorkerID}); err != nil {
		return fmt.Errorf("record batch %s:\n%w", msg.Digest.Short(), err)
	}

	metrics.PayloadRecorded.WithLabelValues(msg.Kind.String()).Inc()
	logger.Debug("batch recorded", "batch", msg.Digest.Short(), "worker", msg.WorkerID, "kind", msg.Kind)

	return nil
}
