package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"DagPool/internal/primary"
	"DagPool/internal/types"
)

// fakeRemover records removal calls and returns err.
type fakeRemover struct {
	calls [][]types.CertificateDigest
	err   error
}

func (f *fakeRemover) Remove(_ context.Context, ids []types.CertificateDigest) error {
	f.calls = append(f.calls, ids)
	return f.err
}

type fixedStatus Status

func (s fixedStatus) Status() Status { return Status(s) }

func serve(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, req)

	return w
}

func digestHex(b byte) string {
	var d types.CertificateDigest
	d[0] = b
	return hex.EncodeToString(d[:])
}

func TestHealthEndpoint(t *testing.T) {
	w := serve(t, New(":0", nil, nil, nil), "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}

func TestStatusEndpoint(t *testing.T) {
	w := serve(t, New(":0", nil, nil, nil), "GET", "/status", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	s := New(":0", fixedStatus{Role: "primary", Epoch: 3, Certificates: 7}, nil, nil)
	w = serve(t, s, "GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "primary", got.Role)
	require.Equal(t, uint64(3), got.Epoch)
	require.Equal(t, 7, got.Certificates)
}

func TestRemoveEndpoint(t *testing.T) {
	remover := &fakeRemover{}
	s := New(":0", nil, remover, nil)

	body := fmt.Sprintf(`{"digests":[%q,%q]}`, digestHex(1), digestHex(2))
	w := serve(t, s, "POST", "/certificates/remove", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, remover.calls, 1)
	require.Len(t, remover.calls[0], 2)
	require.Equal(t, byte(1), remover.calls[0][0][0])
	require.Equal(t, byte(2), remover.calls[0][1][0])
}

func TestRemoveEndpoint_BadInput(t *testing.T) {
	remover := &fakeRemover{}
	s := New(":0", nil, remover, nil)

	for _, body := range []string{
		`not json`,
		`{"digests":[]}`,
		`{"digests":["zz"]}`,
		`{"digests":["abcd"]}`,
	} {
		w := serve(t, s, "POST", "/certificates/remove", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	require.Empty(t, remover.calls)
}

func TestRemoveEndpoint_WorkerHasNoRemover(t *testing.T) {
	body := fmt.Sprintf(`{"digests":[%q]}`, digestHex(1))
	w := serve(t, New(":0", nil, nil, nil), "POST", "/certificates/remove", body)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveEndpoint_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w:\n%w", primary.ErrRemoteDelete, errors.New("timeout")), http.StatusBadGateway},
		{&primary.CleanupError{Layer: primary.LayerDAG, Err: errors.New("referenced")}, http.StatusConflict},
		{&primary.CleanupError{Layer: primary.LayerStorage, Err: errors.New("disk")}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	body := fmt.Sprintf(`{"digests":[%q]}`, digestHex(9))

	for _, tc := range cases {
		s := New(":0", nil, &fakeRemover{err: tc.err}, nil)
		w := serve(t, s, "POST", "/certificates/remove", body)
		require.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(t, New(":0", nil, nil, nil), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

// fakeSealer records sealed batches and returns err.
type fakeSealer struct {
	sealed []*types.Batch
	err    error
}

func (f *fakeSealer) Seal(_ context.Context, b *types.Batch) (types.BatchDigest, error) {
	f.sealed = append(f.sealed, b)
	return b.Digest(), f.err
}

func TestSubmitBatchEndpoint(t *testing.T) {
	sealer := &fakeSealer{}
	s := New(":0", nil, nil, sealer)

	// "dHgx" and "dHgy" are base64 for tx1 and tx2.
	w := serve(t, s, "POST", "/batches", `{"transactions":["dHgx","dHgy"]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Len(t, sealer.sealed, 1)
	require.Equal(t, [][]byte{[]byte("tx1"), []byte("tx2")}, sealer.sealed[0].Transactions)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, sealer.sealed[0].Digest().String(), resp["digest"])
}

func TestSubmitBatchEndpoint_Rejects(t *testing.T) {
	w := serve(t, New(":0", nil, nil, nil), "POST", "/batches", `{"transactions":["dHgx"]}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	sealer := &fakeSealer{}
	s := New(":0", nil, nil, sealer)

	for _, body := range []string{`nope`, `{"transactions":[]}`, `{"transactions":[""]}`} {
		w := serve(t, s, "POST", "/batches", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	require.Empty(t, sealer.sealed)

	s = New(":0", nil, nil, &fakeSealer{err: context.DeadlineExceeded})
	w = serve(t, s, "POST", "/batches", `{"transactions":["dHgx"]}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
