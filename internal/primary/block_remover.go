// Package primary holds the primary-side services that keep the certificate
// DAG and its stores in step with the workers.
package primary

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"DagPool/internal/config"
	"DagPool/internal/logger"
	"DagPool/internal/metrics"
	"DagPool/internal/store"
	"DagPool/internal/types"
)

// ErrRemoteDelete means a worker did not confirm batch deletion.
// No local state was changed.
var ErrRemoteDelete = errors.New("remote batch deletion failed")

// Layer names where local cleanup failed.
type Layer uint8

const (
	// LayerStorage is a certificate, header or payload store failure.
	LayerStorage Layer = iota + 1

	// LayerDAG is a DAG consistency failure.
	LayerDAG
)

func (l Layer) String() string {
	switch l {
	case LayerStorage:
		return "storage"
	case LayerDAG:
		return "dag"
	default:
		return "unknown"
	}
}

// CleanupError is a local cleanup failure, tagged with the layer it came from.
// Certificates are still in the certificate store, so the removal can be retried.
type CleanupError struct {
	Layer Layer
	Err   error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("%s cleanup:\n%v", e.Layer, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// WorkerNetwork asks workers to delete batches.
type WorkerNetwork interface {
	DeleteBatches(ctx context.Context, worker types.PublicKey, digests []types.BatchDigest) error
}

// Dag is the removal side of the certificate DAG.
type Dag interface {
	Remove(ctx context.Context, digests []types.CertificateDigest) error
}

// BlockRemover deletes certificates and everything they cover: the batches
// on the workers, headers, payload markers, DAG entries and finally the
// certificates themselves.
type BlockRemover struct {
	name         types.PublicKey
	workerCache  *config.SharedWorkerCache
	certificates *store.CertificateStore
	headers      *store.HeaderStore
	payload      *store.PayloadStore
	dag          Dag
	network      WorkerNetwork
	txRemoved    chan<- *types.Certificate
}

// Option configures the BlockRemover during creation.
type Option func(*BlockRemover)

// WithDag removes certificates from d as part of cleanup.
func WithDag(d Dag) Option {
	return func(r *BlockRemover) {
		r.dag = d
	}
}

// NewBlockRemover creates a remover for the primary called name.
// Removed certificates are sent on txRemoved.
func NewBlockRemover(
	name types.PublicKey,
	workerCache *config.SharedWorkerCache,
	certificates *store.CertificateStore,
	headers *store.HeaderStore,
	payload *store.PayloadStore,
	network WorkerNetwork,
	txRemoved chan<- *types.Certificate,
	opts ...Option,
) *BlockRemover {
	r := &BlockRemover{
		name:         name,
		workerCache:  workerCache,
		certificates: certificates,
		headers:      headers,
		payload:      payload,
		network:      network,
		txRemoved:    txRemoved,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// workerBatches is the batches of one worker to delete.
type workerBatches struct {
	id      types.WorkerID
	digests []types.BatchDigest
}

// Remove deletes the certificates with the given digests. Digests not in the
// certificate store are skipped. Workers must all confirm before any local
// state changes; local cleanup then runs headers, payload, DAG, certificates.
// Each removed certificate is sent on the output channel in input order.
func (r *BlockRemover) Remove(ctx context.Context, ids []types.CertificateDigest) error {
	stored, err := r.certificates.ReadAll(ids)
	if err != nil {
		return &CleanupError{Layer: LayerStorage, Err: err}
	}

	found := make([]*types.Certificate, 0, len(ids))
	var missing []string

	for i, c := range stored {
		if c == nil {
			missing = append(missing, ids[i].Short())
			continue
		}
		found = append(found, c)
	}

	if len(missing) > 0 {
		logger.Warn("certificates missing, ignored for removal", "count", len(missing), "digests", missing)
		metrics.MissingCertificates.Add(float64(len(missing)))
	}

	if len(found) == 0 {
		return nil
	}

	batches := batchesByWorker(found)

	if err := r.deleteOnWorkers(ctx, batches); err != nil {
		return err
	}

	if err := r.cleanup(ctx, found, batches); err != nil {
		metrics.CleanupFailures.WithLabelValues(err.Layer.String()).Inc()
		return err
	}

	for _, c := range found {
		select {
		case r.txRemoved <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.RemovedCertificates.Add(float64(len(found)))
	logger.Debug("certificates removed", "count", len(found), "workers", len(batches))

	return nil
}

// deleteOnWorkers asks every implicated worker to delete its batches,
// concurrently. It fails if any worker fails.
func (r *BlockRemover) deleteOnWorkers(ctx context.Context, batches []workerBatches) error {
	cache := r.workerCache.Load()

	targets := make([]types.PublicKey, len(batches))
	for i, wb := range batches {
		info, ok := cache.Worker(r.name, wb.id)
		if !ok {
			logger.Error("worker missing from worker cache", "authority", r.name.Short(), "worker", wb.id)
			panic(fmt.Sprintf("worker %d of %s not in worker cache", wb.id, r.name.Short()))
		}
		targets[i] = info.Name
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, wb := range batches {
		target := targets[i]

		g.Go(func() error {
			logger.Debug("delete batches", "worker", wb.id, "peer", target.Short(), "count", len(wb.digests))

			if err := r.network.DeleteBatches(gctx, target, wb.digests); err != nil {
				metrics.RemoteDeleteFailures.WithLabelValues(strconv.FormatUint(uint64(wb.id), 10)).Inc()
				return fmt.Errorf("worker %d:\n%w", wb.id, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w:\n%w", ErrRemoteDelete, err)
	}

	return nil
}

// cleanup removes local state in a fixed order. Certificates go last so a
// failed run leaves them in place for a retry.
func (r *BlockRemover) cleanup(ctx context.Context, certs []*types.Certificate, batches []workerBatches) *CleanupError {
	headerIDs := make([]types.HeaderDigest, len(certs))
	certIDs := make([]types.CertificateDigest, len(certs))

	for i, c := range certs {
		headerIDs[i] = c.Header.Digest()
		certIDs[i] = c.Digest()
	}

	if err := r.headers.RemoveAll(headerIDs); err != nil {
		return &CleanupError{Layer: LayerStorage, Err: err}
	}

	var refs []types.BatchRef
	for _, wb := range batches {
		for _, d := range wb.digests {
			refs = append(refs, types.BatchRef{Digest: d, WorkerID: wb.id})
		}
	}

	if err := r.payload.RemoveAll(refs); err != nil {
		return &CleanupError{Layer: LayerStorage, Err: err}
	}

	if r.dag != nil {
		if err := r.dag.Remove(ctx, certIDs); err != nil {
			return &CleanupError{Layer: LayerDAG, Err: err}
		}
	}

	if err := r.certificates.DeleteAll(certIDs); err != nil {
		return &CleanupError{Layer: LayerStorage, Err: err}
	}

	return nil
}

// batchesByWorker groups the batches of certs by worker, keeping the order
// in which workers and digests first appear.
func batchesByWorker(certs []*types.Certificate) []workerBatches {
	var groups []workerBatches
	index := make(map[types.WorkerID]int)
	seen := make(map[types.BatchRef]struct{})

	for _, c := range certs {
		for _, ref := range c.Header.Payload {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}

			i, ok := index[ref.WorkerID]
			if !ok {
				i = len(groups)
				index[ref.WorkerID] = i
				groups = append(groups, workerBatches{id: ref.WorkerID})
			}

			groups[i].digests = append(groups[i].digests, ref.Digest)
		}
	}

	return groups
}
