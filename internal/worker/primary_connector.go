// Package worker holds the worker-side services: sealing and storing batches,
// reporting their digests to the primary and deleting them on request.
package worker

import (
	"context"
	"sync/atomic"

	"DagPool/internal/config"
	"DagPool/internal/logger"
	"DagPool/internal/metrics"
	"DagPool/internal/types"
	"DagPool/internal/watch"
)

// MaxPendingDigests is the default ceiling of in-flight sends to the primary.
const MaxPendingDigests = 10_000

// PrimaryClient delivers worker reports to a primary.
type PrimaryClient interface {
	SendWorkerMessage(ctx context.Context, primary types.PublicKey, msg *types.WorkerPrimaryMessage) error
}

// PrimaryConnector relays batch digests to the primary. Sends run
// concurrently; past the ceiling new digests are dropped, not queued.
// Delivery is best effort and failed sends are not retried.
type PrimaryConnector struct {
	primary       types.PublicKey
	rxReconfigure *watch.Receiver[config.ReconfigureNotification]
	rxDigest      <-chan *types.WorkerPrimaryMessage
	client        PrimaryClient

	maxPending int
	inFlight   int        // owned by the run loop
	completed  chan error // one result per started send

	dropped atomic.Uint64
	done    chan struct{}
}

// ConnectorOption configures the PrimaryConnector during creation.
type ConnectorOption func(*PrimaryConnector)

// WithMaxPending overrides the in-flight ceiling.
func WithMaxPending(n int) ConnectorOption {
	return func(c *PrimaryConnector) {
		c.maxPending = n
	}
}

// SpawnPrimaryConnector starts relaying digests from rxDigest to primary
// until a Shutdown reconfiguration is observed.
func SpawnPrimaryConnector(
	primary types.PublicKey,
	rxReconfigure *watch.Receiver[config.ReconfigureNotification],
	rxDigest <-chan *types.WorkerPrimaryMessage,
	client PrimaryClient,
	opts ...ConnectorOption,
) *PrimaryConnector {
	c := newPrimaryConnector(primary, rxReconfigure, rxDigest, client, opts...)

	go c.run()

	return c
}

func newPrimaryConnector(
	primary types.PublicKey,
	rxReconfigure *watch.Receiver[config.ReconfigureNotification],
	rxDigest <-chan *types.WorkerPrimaryMessage,
	client PrimaryClient,
	opts ...ConnectorOption,
) *PrimaryConnector {
	c := &PrimaryConnector{
		primary:       primary,
		rxReconfigure: rxReconfigure,
		rxDigest:      rxDigest,
		client:        client,
		maxPending:    MaxPendingDigests,
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Sized so a send finishing after the loop exits never blocks.
	c.completed = make(chan error, c.maxPending)

	return c
}

// Done is closed when the connector has stopped.
func (c *PrimaryConnector) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many digests were shed at the ceiling.
func (c *PrimaryConnector) Dropped() uint64 {
	return c.dropped.Load()
}

// run is the connector loop. select picks uniformly among ready cases, so
// no event source starves the others.
func (c *PrimaryConnector) run() {
	defer close(c.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		metrics.ConnectorInFlight.Sub(float64(c.inFlight))
	}()

	rxDigest := c.rxDigest

	for {
		select {
		case msg, ok := <-rxDigest:
			if !ok {
				logger.Info("digest input closed, waiting for shutdown")
				rxDigest = nil
				continue
			}

			c.relay(ctx, msg)

		case <-c.rxReconfigure.Changed():
			n, err := c.rxReconfigure.Update()
			if err != nil {
				logger.Error("reconfiguration source dropped", "error", err)
				panic("primary connector: reconfiguration source dropped")
			}

			if n.IsShutdown() {
				logger.Debug("primary connector shutting down", "in_flight", c.inFlight)
				return
			}

			logger.Debug("primary connector reconfigured", "kind", n.Kind, "epoch", n.Epoch())

		case err := <-c.completed:
			c.inFlight--
			metrics.ConnectorInFlight.Dec()

			if err != nil {
				metrics.ConnectorSendFailures.Inc()
				logger.Debug("send to primary failed", "primary", c.primary.Short(), "error", err)
			}
		}
	}
}

// relay starts sending msg, or drops it if the ceiling is reached.
func (c *PrimaryConnector) relay(ctx context.Context, msg *types.WorkerPrimaryMessage) {
	if c.inFlight >= c.maxPending {
		c.dropped.Add(1)
		metrics.ConnectorDropped.Inc()
		logger.Warn("too many pending digests, dropping",
			"batch", msg.Digest.Short(),
			"worker", msg.WorkerID,
			"in_flight", c.inFlight,
		)
		return
	}

	c.inFlight++
	metrics.ConnectorInFlight.Inc()

	go func() {
		c.completed <- c.client.SendWorkerMessage(ctx, c.primary, msg)
	}()
}
