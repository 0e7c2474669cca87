package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slotclaim/internal/auth"
	"github.com/example/slotclaim/internal/runs"
)

func newServer(t *testing.T, store runs.Store) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	return &Server{Auth: auth.Basic{User: "ops", PasswordHash: hash}, Runs: store}
}

func TestHealthzIsOpen(t *testing.T) {
	h := newServer(t, &runs.Memory{}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestRunsRequiresAuth(t *testing.T) {
	h := newServer(t, &runs.Memory{}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunsListsNewestFirst(t *testing.T) {
	store := &runs.Memory{}
	ctx := context.Background()
	base := time.Date(2026, 10, 3, 8, 0, 0, 0, time.UTC)
	for i, wf := range []string{"prelogin", "signup", "signup"} {
		require.NoError(t, store.Record(ctx, runs.Run{
			ID:        uuid.New(),
			Workflow:  wf,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Attempts:  i + 1,
			OK:        i == 2,
		}))
	}
	h := newServer(t, store).Routes()

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=2", nil)
	req.SetBasicAuth("ops", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got []runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Attempts)
	assert.True(t, got[0].OK)
	assert.Equal(t, "signup", got[1].Workflow)
}

func TestRunsEmptyIsArray(t *testing.T) {
	h := newServer(t, &runs.Memory{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.SetBasicAuth("ops", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRunsBadLimit(t *testing.T) {
	h := newServer(t, &runs.Memory{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=zero", nil)
	req.SetBasicAuth("ops", "pw")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { done <- Serve(ctx, ln, newServer(t, &runs.Memory{}).Routes(), logger) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
