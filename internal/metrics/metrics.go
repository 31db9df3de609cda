// Package metrics declares the prometheus collectors exported by a node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MissingCertificates counts digests asked for removal that were not stored.
	MissingCertificates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_block_remover_missing_certificates_total",
		Help: "Certificate digests requested for removal that were not in the certificate store.",
	})

	// RemovedCertificates counts certificates fully removed.
	RemovedCertificates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_block_remover_removed_certificates_total",
		Help: "Certificates removed from workers, stores and the DAG.",
	})

	// RemoteDeleteFailures counts failed delete-batches calls, by worker id.
	RemoteDeleteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagpool_block_remover_remote_delete_failures_total",
		Help: "Delete-batches calls to workers that failed.",
	}, []string{"worker"})

	// CleanupFailures counts local cleanup failures, by layer.
	CleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagpool_block_remover_cleanup_failures_total",
		Help: "Local cleanup failures after remote deletion succeeded.",
	}, []string{"layer"})

	// ConnectorDropped counts digests the primary connector shed at its ceiling.
	ConnectorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_primary_connector_dropped_total",
		Help: "Worker digests dropped because too many sends were in flight.",
	})

	// ConnectorInFlight is the number of sends the primary connector awaits.
	ConnectorInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dagpool_primary_connector_in_flight",
		Help: "Worker digests being sent to the primary.",
	})

	// ConnectorSendFailures counts sends to the primary that failed.
	ConnectorSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_primary_connector_send_failures_total",
		Help: "Worker digests whose send to the primary failed.",
	})

	// PayloadRecorded counts payload markers written from worker reports, by kind.
	PayloadRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagpool_primary_payload_recorded_total",
		Help: "Payload markers recorded from worker reports.",
	}, []string{"kind"})

	// BatchesSealed counts batches stored and reported by a worker.
	BatchesSealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_worker_batches_sealed_total",
		Help: "Batches sealed and stored by this worker.",
	})

	// BatchSendFailures counts sealed batches a peer worker could not be sent.
	BatchSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_worker_batch_send_failures_total",
		Help: "Sealed batch sends to peer workers that failed.",
	})

	// BatchesDeleted counts batch digests a worker was asked to delete.
	BatchesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagpool_worker_batches_deleted_total",
		Help: "Batch digests deleted on request of the primary.",
	})
)
