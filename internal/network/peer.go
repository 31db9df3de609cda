package network

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"DagPool/internal/logger"
	"DagPool/internal/types"
)

const (
	// defaultRequestTimeout is the default timeout for Request calls.
	defaultRequestTimeout = 30 * time.Second

	// maxIncomingStreams caps concurrent streams a peer may open to us.
	maxIncomingStreams = 10_000
)

// Peer is a connection to a remote node.
type Peer struct {
	publicKey types.PublicKey // publicKey is the remote node's identity
	address   string          // address is the remote address
	conn      *quic.Conn      // conn is the underlying QUIC connection
	node      *Node           // node is the parent node
	closed    atomic.Bool     // closed indicates if the peer is closed
}

// PublicKey returns the remote node's identity.
func (p *Peer) PublicKey() types.PublicKey {
	return p.publicKey
}

// Address returns the remote address.
func (p *Peer) Address() string {
	return p.address
}

// Send writes a one-way frame on a new unidirectional stream.
// It blocks while the peer's stream limit is reached.
func (p *Peer) Send(ctx context.Context, f Frame) error {
	if p.closed.Load() {
		return ErrPeerClosed
	}

	stream, err := p.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open stream:\n%w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(deadline)
	}

	if err := writeFrame(stream, f); err != nil {
		stream.CancelWrite(0)
		return err
	}

	return stream.Close()
}

// Request writes f on a bidirectional stream and waits for the response.
// A KindError response is returned as a *RemoteError.
func (p *Peer) Request(ctx context.Context, f Frame) (Frame, error) {
	if p.closed.Load() {
		return Frame{}, ErrPeerClosed
	}

	stream, err := p.conn.OpenStreamSync(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, f); err != nil {
		return Frame{}, fmt.Errorf("write request:\n%w", err)
	}

	resp, err := readFrame(stream)
	if err != nil {
		return Frame{}, fmt.Errorf("read response:\n%w", err)
	}

	if resp.Kind == KindError {
		return Frame{}, &RemoteError{Peer: p.publicKey, Message: string(resp.Payload)}
	}

	return resp, nil
}

// Close closes the peer connection.
func (p *Peer) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	return p.conn.CloseWithError(0, "closed")
}

// receiveLoop accepts unidirectional streams until the connection ends.
func (p *Peer) receiveLoop(ctx context.Context) {
	for {
		stream, err := p.conn.AcceptUniStream(ctx)
		if err != nil {
			break
		}

		go p.handleUniStream(stream)
	}

	p.handleDisconnect()
}

// acceptRequests accepts bidirectional streams for request/response.
func (p *Peer) acceptRequests(ctx context.Context) {
	for {
		stream, err := p.conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		go p.handleBidiStream(stream)
	}
}

// handleBidiStream answers one request. Handler errors go back as KindError.
func (p *Peer) handleBidiStream(stream *quic.Stream) {
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(defaultRequestTimeout))

	req, err := readFrame(stream)
	if err != nil {
		logger.Debug("request read error", "peer", p.publicKey.Short(), "error", err)
		return
	}

	resp, err := p.node.callOnRequest(p, req)
	if err != nil {
		resp = Frame{Kind: KindError, Payload: []byte(err.Error())}
	}

	if err := writeFrame(stream, resp); err != nil {
		logger.Debug("response write error", "peer", p.publicKey.Short(), "kind", req.Kind, "error", err)
	}
}

// handleUniStream reads one frame from a unidirectional stream.
func (p *Peer) handleUniStream(stream *quic.ReceiveStream) {
	f, err := readFrame(stream)
	if err != nil {
		logger.Debug("stream read error", "peer", p.publicKey.Short(), "error", err)
		return
	}

	if !p.node.dedup.Check(f) {
		logger.Debug("dedup filtered", "peer", p.publicKey.Short(), "kind", f.Kind)
		return
	}

	p.node.callOnMessage(p, f)
}

// handleDisconnect marks the peer closed and tells the node.
func (p *Peer) handleDisconnect() {
	p.closed.Store(true)
	p.node.handlePeerDisconnect(p)
}

// RemoteError is a failure reported by the remote request handler.
type RemoteError struct {
	Peer    types.PublicKey
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("peer %s: %s", e.Peer.Short(), e.Message)
}
