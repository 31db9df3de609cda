package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"DagPool/internal/logger"
	"DagPool/internal/types"
)

const (
	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "dagpool/1"

	// defaultDialTimeout bounds a dial when the caller's context has no deadline.
	defaultDialTimeout = 10 * time.Second
)

var (
	// ErrUnknownPeer means no address is known for the requested identity.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrPeerClosed means the connection to the peer is gone.
	ErrPeerClosed = errors.New("peer is closed")

	// ErrIdentityMismatch means the dialed address presented another key.
	ErrIdentityMismatch = errors.New("peer identity mismatch")
)

// Config holds the configuration for a Node.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node's ed25519 private key
	ListenAddr string             // ListenAddr is the address to listen on (e.g., ":9000")
	DedupTTL   time.Duration      // DedupTTL overrides how long one-way messages are remembered
}

// Node accepts and initiates QUIC connections to peers identified by their
// ed25519 key. Peers are dialed on first use from the address book.
type Node struct {
	privateKey ed25519.PrivateKey // privateKey is the node's ed25519 private key
	publicKey  types.PublicKey    // publicKey is the node's identity
	listenAddr string             // listenAddr is the address to listen on
	tlsConfig  *tls.Config        // tlsConfig is the TLS configuration
	quicConfig *quic.Config       // quicConfig is the QUIC configuration

	listener *quic.Listener // listener is the QUIC listener

	peers   map[types.PublicKey]*Peer // peers maps identity to live connection
	peersMu sync.RWMutex              // peersMu protects peers

	addrs   map[types.PublicKey]string // addrs is the address book
	addrsMu sync.RWMutex               // addrsMu protects addrs

	dialMu sync.Mutex // dialMu serialises dials so one peer gets one connection

	dedup *Dedup // dedup drops repeated one-way messages

	onMessage  func(*Peer, Frame)                // onMessage handles one-way frames
	onRequest  func(*Peer, Frame) (Frame, error) // onRequest handles request frames
	handlersMu sync.RWMutex                      // handlersMu protects event handlers

	ctx    context.Context    // ctx is the node's context
	cancel context.CancelFunc // cancel cancels the node's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
}

// NewNode creates a new network node.
func NewNode(cfg Config) (*Node, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	publicKey, err := types.PublicKeyFrom(cfg.PrivateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	cert, err := generateCertificate(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // the peer key is checked against the address book
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:        30 * time.Second,
		KeepAlivePeriod:       10 * time.Second,
		MaxIncomingStreams:    maxIncomingStreams,
		MaxIncomingUniStreams: maxIncomingStreams,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		privateKey: cfg.PrivateKey,
		publicKey:  publicKey,
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		peers:      make(map[types.PublicKey]*Peer),
		addrs:      make(map[types.PublicKey]string),
		dedup:      NewDedup(cfg.DedupTTL),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// PublicKey returns the node's identity.
func (n *Node) PublicKey() types.PublicKey {
	return n.publicKey
}

// Addr returns the listener's address. Returns empty string if not started.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// Start starts the node and begins accepting connections.
func (n *Node) Start() error {
	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// SetAddress records where a peer can be dialed.
func (n *Node) SetAddress(key types.PublicKey, addr string) {
	n.addrsMu.Lock()
	n.addrs[key] = addr
	n.addrsMu.Unlock()
}

// Peer returns the connection to key, dialing its recorded address if needed.
func (n *Node) Peer(ctx context.Context, key types.PublicKey) (*Peer, error) {
	if p := n.connected(key); p != nil {
		return p, nil
	}

	n.addrsMu.RLock()
	addr, ok := n.addrs[key]
	n.addrsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, key.Short())
	}

	n.dialMu.Lock()
	defer n.dialMu.Unlock()

	// Another caller may have dialed while we waited.
	if p := n.connected(key); p != nil {
		return p, nil
	}

	p, err := n.Connect(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s at %s:\n%w", key.Short(), addr, err)
	}

	if p.PublicKey() != key {
		p.Close()
		return nil, fmt.Errorf("%w: %s presented %s", ErrIdentityMismatch, addr, p.PublicKey().Short())
	}

	return p, nil
}

// connected returns the live peer for key, or nil.
func (n *Node) connected(key types.PublicKey) *Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	p := n.peers[key]
	if p == nil || p.closed.Load() {
		return nil
	}

	return p
}

// Connect dials addr and returns the resulting peer.
func (n *Node) Connect(ctx context.Context, addr string) (*Peer, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial:\n%w", err)
	}

	peer, err := n.setupPeer(conn, addr)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	return peer, nil
}

// Peers returns every connected peer.
func (n *Node) Peers() []*Peer {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()

	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}

	return peers
}

// OnMessage sets the handler called for one-way frames.
func (n *Node) OnMessage(fn func(*Peer, Frame)) {
	n.handlersMu.Lock()
	n.onMessage = fn
	n.handlersMu.Unlock()
}

// OnRequest sets the handler for request frames.
// The returned frame is written back as the response.
func (n *Node) OnRequest(fn func(*Peer, Frame) (Frame, error)) {
	n.handlersMu.Lock()
	n.onRequest = fn
	n.handlersMu.Unlock()
}

// Close stops the node and closes all connections.
func (n *Node) Close() error {
	n.cancel()

	if n.listener != nil {
		n.listener.Close()
	}

	n.peersMu.Lock()
	peers := n.peers
	n.peers = make(map[types.PublicKey]*Peer)
	n.peersMu.Unlock()

	for _, p := range peers {
		p.Close()
	}

	n.dedup.Close()
	n.wg.Wait()

	return nil
}

// acceptLoop accepts incoming connections.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return // Listener closed
		}

		if _, err := n.setupPeer(conn, conn.RemoteAddr().String()); err != nil {
			logger.Debug("reject connection", "addr", conn.RemoteAddr().String(), "error", err)
			conn.CloseWithError(1, "setup failed")
		}
	}
}

// setupPeer creates a Peer from a QUIC connection and starts reading from it.
func (n *Node) setupPeer(conn *quic.Conn, addr string) (*Peer, error) {
	pubKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("extract public key:\n%w", err)
	}

	key, err := types.PublicKeyFrom(pubKey)
	if err != nil {
		return nil, err
	}

	peer := &Peer{
		publicKey: key,
		address:   addr,
		conn:      conn,
		node:      n,
	}

	n.peersMu.Lock()
	if existing := n.peers[key]; existing == nil || existing.closed.Load() {
		n.peers[key] = peer
	}
	n.peersMu.Unlock()

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		peer.receiveLoop(n.ctx)
	}()
	go func() {
		defer n.wg.Done()
		peer.acceptRequests(n.ctx)
	}()

	return peer, nil
}

// handlePeerDisconnect forgets a peer whose connection ended.
// The next Peer call for that identity dials again.
func (n *Node) handlePeerDisconnect(p *Peer) {
	n.peersMu.Lock()
	if n.peers[p.publicKey] == p {
		delete(n.peers, p.publicKey)
	}
	n.peersMu.Unlock()

	logger.Debug("peer disconnected", "peer", p.publicKey.Short(), "addr", p.address)
}

// callOnMessage calls the onMessage handler if set.
func (n *Node) callOnMessage(p *Peer, f Frame) {
	n.handlersMu.RLock()
	fn := n.onMessage
	n.handlersMu.RUnlock()

	if fn != nil {
		fn(p, f)
	}
}

// callOnRequest calls the onRequest handler if set.
func (n *Node) callOnRequest(p *Peer, f Frame) (Frame, error) {
	n.handlersMu.RLock()
	fn := n.onRequest
	n.handlersMu.RUnlock()

	if fn == nil {
		return Frame{}, fmt.Errorf("no request handler registered")
	}

	return fn(p, f)
}
