package main

import (
	"fmt"

	"DagPool/internal/config"
	"DagPool/internal/dag"
	"DagPool/internal/logger"
	"DagPool/internal/primary"
	"DagPool/internal/store"
	"DagPool/internal/types"
)

// removedBuffer is the capacity of the removed-certificates channel.
const removedBuffer = 1_000

// initPrimary wires stores, the DAG, the block remover and worker reports.
func (n *Node) initPrimary() error {
	if _, ok := n.committee.Authority(n.name); !ok {
		return fmt.Errorf("key %s is not a committee member", n.name.Short())
	}

	certificates := store.NewCertificateStore(n.storage)
	headers := store.NewHeaderStore(n.storage)
	payload := store.NewPayloadStore(n.storage)

	n.dag = dag.New(dag.WithCommittee(n.committee))
	if err := n.loadDag(certificates); err != nil {
		return err
	}

	for _, w := range n.workerCache.Load().Workers(n.name) {
		n.network.SetAddress(w.Name, w.QUICAddr)
	}

	removed := make(chan *types.Certificate, removedBuffer)
	n.remover = primary.NewBlockRemover(
		n.name, n.workerCache, certificates, headers, payload, n.client, removed,
		primary.WithDag(n.dag),
	)

	handler := primary.NewWorkerMessageHandler(n.name, n.workerCache, payload)
	n.network.OnMessage(handler.HandleMessage)

	n.wg.Add(1)
	go n.drainRemoved(removed)

	return nil
}

// loadDag inserts every stored certificate of the current epoch into the DAG.
func (n *Node) loadDag(certificates *store.CertificateStore) error {
	skipped := 0

	err := certificates.Iterate(func(c *types.Certificate) error {
		if _, err := n.dag.Insert(c); err != nil {
			skipped++
			logger.Debug("certificate not loaded", "digest", c.Digest().Short(), "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load dag:\n%w", err)
	}

	logger.Info("dag loaded", "certificates", n.dag.Len(), "skipped", skipped)

	return nil
}

// drainRemoved logs removed certificates until shutdown.
func (n *Node) drainRemoved(removed <-chan *types.Certificate) {
	defer n.wg.Done()

	rx := n.rxReconfigure.Clone()

	for {
		select {
		case c := <-removed:
			logger.Debug("certificate removed", "digest", c.Digest().Short(), "round", c.Round())

		case <-rx.Changed():
			notification, err := rx.Update()
			if err != nil || notification.Kind == config.Shutdown {
				return
			}

			if notification.Committee != nil {
				n.workerCache.Swap(notification.Committee.WorkerCache())
			}
		}
	}
}
