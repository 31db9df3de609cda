package network

import (
	"context"
	"fmt"

	"DagPool/internal/types"
)

// Client is the typed face of a Node: the messages primaries and workers
// exchange.
type Client struct {
	node *Node
}

// NewClient wraps node.
func NewClient(node *Node) *Client {
	return &Client{node: node}
}

// Send delivers a one-way frame to the peer with the given identity.
func (c *Client) Send(ctx context.Context, to types.PublicKey, f Frame) error {
	p, err := c.node.Peer(ctx, to)
	if err != nil {
		return err
	}

	if err := p.Send(ctx, f); err != nil {
		return fmt.Errorf("send %s to %s:\n%w", f.Kind, to.Short(), err)
	}

	return nil
}

// SendWorkerMessage reports a batch digest to a primary.
func (c *Client) SendWorkerMessage(ctx context.Context, primary types.PublicKey, msg *types.WorkerPrimaryMessage) error {
	return c.Send(ctx, primary, Frame{Kind: KindWorkerPrimary, Payload: types.EncodeWorkerPrimaryMessage(msg)})
}

// DeleteBatches asks a worker to delete batches and waits for its ack.
func (c *Client) DeleteBatches(ctx context.Context, worker types.PublicKey, digests []types.BatchDigest) error {
	p, err := c.node.Peer(ctx, worker)
	if err != nil {
		return err
	}

	req := Frame{
		Kind:    KindDeleteBatches,
		Payload: types.EncodeDeleteBatchesRequest(&types.DeleteBatchesRequest{Digests: digests}),
	}

	resp, err := p.Request(ctx, req)
	if err != nil {
		return fmt.Errorf("delete %d batches on %s:\n%w", len(digests), worker.Short(), err)
	}

	if resp.Kind != KindDeleteBatchesAck {
		return fmt.Errorf("delete batches on %s: unexpected %s response", worker.Short(), resp.Kind)
	}

	return nil
}

// SendBatch hands a sealed batch to another authority's worker.
func (c *Client) SendBatch(ctx context.Context, worker types.PublicKey, b *types.Batch) error {
	return c.Send(ctx, worker, Frame{Kind: KindBatch, Payload: b.Encode()})
}
