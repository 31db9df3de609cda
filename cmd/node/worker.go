package main

import (
	"fmt"

	"DagPool/internal/logger"
	"DagPool/internal/store"
	"DagPool/internal/types"
	"DagPool/internal/worker"
)

// digestBuffer is the capacity of the worker-to-connector digest channel.
const digestBuffer = 1_000

// initWorker wires the batch store, delete handling and the primary connector.
func (n *Node) initWorker() error {
	authority, id, ok := n.committee.FindWorker(n.name)
	if !ok {
		return fmt.Errorf("key %s is not a worker in the committee", n.name.Short())
	}

	primaryInfo, _ := n.committee.Authority(authority)
	n.network.SetAddress(primaryInfo.Name, primaryInfo.QUICAddr)

	// Batches travel between workers with the same id.
	for _, peer := range n.workerCache.Load().Peers(authority, id) {
		n.network.SetAddress(peer.Name, peer.QUICAddr)
	}

	batches := store.NewBatchStore(n.storage)
	digests := make(chan *types.WorkerPrimaryMessage, digestBuffer)

	n.processor = worker.NewProcessor(authority, id, n.workerCache, batches, digests, n.client)
	n.network.OnMessage(n.processor.HandleMessage)
	n.network.OnRequest(worker.NewDeleteHandler(authority, batches).HandleRequest)

	n.connector = worker.SpawnPrimaryConnector(authority, n.rxReconfigure.Clone(), digests, n.client)

	logger.Info("worker ready", "authority", authority.Short(), "worker_id", id)

	return nil
}
