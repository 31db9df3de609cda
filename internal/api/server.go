// Package api serves the node's HTTP admin surface: health, status,
// prometheus metrics, operator-driven certificate removal on primaries and
// batch submission on workers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"DagPool/internal/logger"
	"DagPool/internal/primary"
	"DagPool/internal/types"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 1 << 20 // 1 MB

	// removeTimeout bounds one removal request.
	removeTimeout = 30 * time.Second
)

// Remover deletes certificates and everything they reference.
type Remover interface {
	Remove(ctx context.Context, ids []types.CertificateDigest) error
}

// Sealer stores a batch and hands it to the worker's pipeline.
type Sealer interface {
	Seal(ctx context.Context, b *types.Batch) (types.BatchDigest, error)
}

// Status is the node state reported by GET /status.
type Status struct {
	Role         string `json:"role"`
	Name         string `json:"name"`
	Epoch        uint64 `json:"epoch"`
	Certificates int    `json:"certificates"` // Certificates is the DAG size, primaries only
	Dropped      uint64 `json:"dropped"`      // Dropped counts digests shed by the primary connector, workers only
}

// StatusProvider exposes node state for monitoring.
type StatusProvider interface {
	Status() Status
}

// Server is the HTTP admin server.
type Server struct {
	addr    string         // addr is the HTTP listen address
	status  StatusProvider // status provides node state for monitoring
	remover Remover        // remover is nil on workers
	sealer  Sealer         // sealer is nil on primaries
	server  *http.Server   // server is the underlying HTTP server
}

// New creates a new HTTP admin server. remover and sealer may be nil.
func New(addr string, status StatusProvider, remover Remover, sealer Sealer) *Server {
	return &Server{
		addr:    addr,
		status:  status,
		remover: remover,
		sealer:  sealer,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      removeTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /certificates/remove", s.handleRemove)
	mux.HandleFunc("POST /batches", s.handleSubmitBatch)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}

	writeJSON(w, http.StatusOK, s.status.Status())
}

// removeRequest is the body of POST /certificates/remove.
type removeRequest struct {
	Digests []string `json:"digests"`
}

// handleRemove handles POST /certificates/remove requests.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if s.remover == nil {
		writeError(w, http.StatusNotFound, "removal is only served by primaries")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req removeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ids, err := parseDigests(req.Digests)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), removeTimeout)
	defer cancel()

	if err := s.remover.Remove(ctx, ids); err != nil {
		logger.Warn("removal failed", "certificates", len(ids), "error", err)
		writeError(w, removeStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"requested": len(ids),
	})
}

// batchRequest is the body of POST /batches. Transactions are base64.
type batchRequest struct {
	Transactions [][]byte `json:"transactions"`
}

// handleSubmitBatch handles POST /batches requests.
func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if s.sealer == nil {
		writeError(w, http.StatusNotFound, "batches are only served by workers")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateBatch(req.Transactions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), removeTimeout)
	defer cancel()

	d, err := s.sealer.Seal(ctx, &types.Batch{Transactions: req.Transactions})
	if err != nil {
		logger.Warn("seal failed", "txs", len(req.Transactions), "error", err)

		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}

		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"digest": d.String(),
	})
}

// removeStatus maps a removal error to an HTTP status.
func removeStatus(err error) int {
	var cleanup *primary.CleanupError

	switch {
	case errors.Is(err, primary.ErrRemoteDelete):
		return http.StatusBadGateway
	case errors.As(err, &cleanup) && cleanup.Layer == primary.LayerDAG:
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
