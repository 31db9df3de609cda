package worker

import (
	"errors"
	"fmt"

	"DagPool/internal/logger"
	"DagPool/internal/metrics"
	"DagPool/internal/network"
	"DagPool/internal/store"
	"DagPool/internal/types"
)

// ErrNotOurPrimary means a delete request came from a peer other than our primary.
var ErrNotOurPrimary = errors.New("request not from our primary")

// DeleteHandler answers the primary's delete-batches requests.
type DeleteHandler struct {
	primary types.PublicKey
	batches *store.BatchStore
}

// NewDeleteHandler creates a handler accepting requests from primary only.
func NewDeleteHandler(primary types.PublicKey, batches *store.BatchStore) *DeleteHandler {
	return &DeleteHandler{primary: primary, batches: batches}
}

// HandleRequest is the network.Node request callback.
func (h *DeleteHandler) HandleRequest(p *network.Peer, f network.Frame) (network.Frame, error) {
	if f.Kind != network.KindDeleteBatches {
		return network.Frame{}, fmt.Errorf("unsupported request %s", f.Kind)
	}

	if p.PublicKey() != h.primary {
		return network.Frame{}, fmt.Errorf("%w: %s", ErrNotOurPrimary, p.PublicKey().Short())
	}

	req, err := types.DecodeDeleteBatchesRequest(f.Payload)
	if err != nil {
		return network.Frame{}, err
	}

	if err := h.Delete(req.Digests); err != nil {
		return network.Frame{}, err
	}

	return network.Frame{Kind: network.KindDeleteBatchesAck}, nil
}

// Delete removes batches from the store. Absent batches are not an error.
func (h *DeleteHandler) Delete(digests []types.BatchDigest) error {
	if err := h.batches.RemoveAll(digests); err != nil {
		logger.Error("delete batches", "count", len(digests), "error", err)
		return fmt.Errorf("delete %d batches:\n%w", len(digests), err)
	}

	metrics.BatchesDeleted.Add(float64(len(digests)))
	logger.Debug("batches deleted", "count", len(digests))

	return nil
}
