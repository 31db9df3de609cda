package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"DagPool/internal/config"
	"DagPool/internal/logger"
	"DagPool/internal/metrics"
	"DagPool/internal/network"
	"DagPool/internal/store"
	"DagPool/internal/types"
)

// ErrNotPeerWorker is returned for batches from a node that is not a
// same-id worker of another authority.
var ErrNotPeerWorker = errors.New("sender is not a peer worker")

// BatchSender pushes a batch to another authority's worker.
type BatchSender interface {
	SendBatch(ctx context.Context, worker types.PublicKey, b *types.Batch) error
}

// Processor stores batches, shares sealed ones with peer workers and queues
// their digests for the primary connector.
type Processor struct {
	authority   types.PublicKey           // authority is the primary this worker belongs to
	id          types.WorkerID            // id is this worker's id
	workerCache *config.SharedWorkerCache // workerCache resolves peer workers
	batches     *store.BatchStore
	txDigest    chan<- *types.WorkerPrimaryMessage
	sender      BatchSender // sender is nil when sealed batches stay local

	ctx    context.Context // ctx bounds reports of received batches
	cancel context.CancelFunc
}

// NewProcessor creates the processor of worker id of authority.
func NewProcessor(
	authority types.PublicKey,
	id types.WorkerID,
	workerCache *config.SharedWorkerCache,
	batches *store.BatchStore,
	txDigest chan<- *types.WorkerPrimaryMessage,
	sender BatchSender,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		authority:   authority,
		id:          id,
		workerCache: workerCache,
		batches:     batches,
		txDigest:    txDigest,
		sender:      sender,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Stop releases network callbacks waiting to queue a digest.
func (p *Processor) Stop() {
	p.cancel()
}

// Seal stores a batch made by this worker, reports it as OurBatch and
// sends it to the same-id worker of every other authority.
func (p *Processor) Seal(ctx context.Context, b *types.Batch) (types.BatchDigest, error) {
	d, err := p.process(ctx, b, types.OurBatch)
	if err != nil {
		return d, err
	}

	metrics.BatchesSealed.Inc()

	if p.sender != nil {
		p.broadcast(ctx, b, d)
	}

	return d, nil
}

// broadcast sends b to every peer worker concurrently. Failures are logged;
// the batch is already stored and reported.
func (p *Processor) broadcast(ctx context.Context, b *types.Batch, d types.BatchDigest) {
	var g errgroup.Group

	for _, peer := range p.workerCache.Load().Peers(p.authority, p.id) {
		g.Go(func() error {
			if err := p.sender.SendBatch(ctx, peer.Name, b); err != nil {
				metrics.BatchSendFailures.Inc()
				logger.Warn("send batch", "batch", d.Short(), "worker", peer.Name.Short(), "error", err)
			}
			return nil
		})
	}

	g.Wait()
}

// HandleMessage is the network.Node message callback: batches from other
// authorities' workers are stored and reported as OthersBatch.
func (p *Processor) HandleMessage(peer *network.Peer, f network.Frame) {
	if f.Kind != network.KindBatch {
		logger.Debug("unexpected frame", "peer", peer.PublicKey().Short(), "kind", f.Kind)
		return
	}

	if _, err := p.Receive(p.ctx, peer.PublicKey(), f.Payload); err != nil {
		logger.Warn("peer batch rejected", "peer", peer.PublicKey().Short(), "error", err)
	}
}

// Receive stores an encoded batch sent by from and reports it as OthersBatch.
func (p *Processor) Receive(ctx context.Context, from types.PublicKey, payload []byte) (types.BatchDigest, error) {
	if !p.workerCache.Load().IsPeer(p.authority, p.id, from) {
		return types.BatchDigest{}, ErrNotPeerWorker
	}

	b, err := types.DecodeBatch(payload)
	if err != nil {
		return types.BatchDigest{}, fmt.Errorf("decode batch:\n%w", err)
	}

	return p.process(ctx, b, types.OthersBatch)
}

// process stores b and queues its digest. Queueing blocks until the
// connector takes it or ctx ends.
func (p *Processor) process(ctx context.Context, b *types.Batch, kind types.WorkerMessageKind) (types.BatchDigest, error) {
	d, err := p.batches.Write(b)
	if err != nil {
		return d, fmt.Errorf("store batch:\n%w", err)
	}

	msg := &types.WorkerPrimaryMessage{Kind: kind, Digest: d, WorkerID: p.id}

	select {
	case p.txDigest <- msg:
	case <-ctx.Done():
		return d, ctx.Err()
	}

	logger.Debug("batch stored", "batch", d.Short(), "kind", kind, "txs", len(b.Transactions))

	return d, nil
}
