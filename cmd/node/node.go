package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"DagPool/internal/api"
	"DagPool/internal/config"
	"DagPool/internal/dag"
	"DagPool/internal/logger"
	"DagPool/internal/network"
	"DagPool/internal/primary"
	"DagPool/internal/storage"
	"DagPool/internal/types"
	"DagPool/internal/watch"
	"DagPool/internal/worker"
)

// shutdownTimeout bounds how long long-lived tasks get to stop.
const shutdownTimeout = 5 * time.Second

// Node is a running primary or worker.
type Node struct {
	cfg         *Config
	name        types.PublicKey
	committee   *config.Committee
	workerCache *config.SharedWorkerCache
	storage     *storage.Storage
	network     *network.Node
	client      *network.Client
	api         *api.Server

	txReconfigure *watch.Sender[config.ReconfigureNotification]
	rxReconfigure *watch.Receiver[config.ReconfigureNotification]

	// primary role
	dag     *dag.Dag
	remover *primary.BlockRemover

	// worker role
	connector *worker.PrimaryConnector
	processor *worker.Processor

	wg sync.WaitGroup
}

// NewNode loads the committee and builds the components of cfg.Role.
func NewNode(cfg *Config) (*Node, error) {
	name, err := types.PublicKeyFrom(cfg.PrivateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	committee, err := config.LoadCommittee(cfg.CommitteePath)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:         cfg,
		name:        name,
		committee:   committee,
		workerCache: config.NewSharedWorkerCache(committee.WorkerCache()),
	}

	n.txReconfigure, n.rxReconfigure = watch.New(config.ReconfigureNotification{
		Kind:      config.NewEpoch,
		Committee: committee,
	})

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if err := n.initNetwork(); err != nil {
		n.Close()
		return nil, err
	}

	switch cfg.Role {
	case rolePrimary:
		err = n.initPrimary()
	case roleWorker:
		err = n.initWorker()
	}

	if err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage opens the pebble database under the data directory.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initNetwork creates the QUIC node. Handlers are set by the role.
func (n *Node) initNetwork() error {
	node, err := network.NewNode(network.Config{
		PrivateKey: n.cfg.PrivateKey,
		ListenAddr: n.cfg.QUICAddress,
	})
	if err != nil {
		return fmt.Errorf("init network:\n%w", err)
	}

	n.network = node
	n.client = network.NewClient(node)

	return nil
}

// Run starts listening and blocks until a shutdown signal.
func (n *Node) Run() error {
	if err := n.network.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start network:\n%w", err)
	}

	if n.cfg.HTTPAddress != "" {
		n.startAPI()
	}

	return n.waitForShutdown()
}

// startAPI serves health, status and metrics, plus certificate removal on
// primaries and batch submission on workers.
func (n *Node) startAPI() {
	var remover api.Remover
	if n.remover != nil {
		remover = n.remover
	}

	var sealer api.Sealer
	if n.processor != nil {
		sealer = n.processor
	}

	n.api = api.New(n.cfg.HTTPAddress, n, remover, sealer)
	n.api.Start()
}

// Status reports the node state for the admin API.
func (n *Node) Status() api.Status {
	s := api.Status{
		Role:  n.cfg.Role,
		Name:  n.name.String(),
		Epoch: n.rxReconfigure.Borrow().Epoch(),
	}

	if n.dag != nil {
		s.Certificates = n.dag.Len()
	}

	if n.connector != nil {
		s.Dropped = n.connector.Dropped()
	}

	return s
}

// waitForShutdown blocks until SIGINT or SIGTERM, then tells every task to stop.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close announces shutdown, waits for long-lived tasks and releases every component.
func (n *Node) Close() error {
	n.txReconfigure.Send(config.ReconfigureNotification{Kind: config.Shutdown})

	if n.processor != nil {
		n.processor.Stop()
	}

	stopped := make(chan struct{})
	go func() {
		n.wg.Wait()
		if n.connector != nil {
			<-n.connector.Done()
		}
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("tasks did not stop in time")
	}

	if n.api != nil {
		n.api.Stop()
	}

	if n.network != nil {
		n.network.Close()
	}

	if n.storage != nil {
		n.storage.Close()
	}

	return nil
}
