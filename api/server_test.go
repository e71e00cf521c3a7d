package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/staffv/kbstore/internal/ingest"
	"github.com/staffv/kbstore/internal/log"
	"github.com/staffv/kbstore/internal/search"
	"github.com/staffv/kbstore/internal/stats"
)

// mockService implements KnowledgeService for handler tests.
type mockService struct {
	searchResults []search.Result
	searchErr     error
	ingestResult  ingest.Result
	ingestErr     error
	snapshot      stats.Snapshot
	snapshotErr   error
	pingErr       error

	gotCaller string
	gotQuery  string
	gotOpts   int
}

func (m *mockService) Search(_ context.Context, caller, query string, opts ...search.Option) ([]search.Result, error) {
	m.gotCaller = caller
	m.gotQuery = query
	m.gotOpts = len(opts)
	return m.searchResults, m.searchErr
}

func (m *mockService) IngestURL(context.Context, []byte, string) (ingest.Result, error) {
	return m.ingestResult, m.ingestErr
}

func (m *mockService) IngestManual(context.Context, string, string) (ingest.Result, error) {
	return m.ingestResult, m.ingestErr
}

func (m *mockService) Snapshot(context.Context) (stats.Snapshot, error) {
	return m.snapshot, m.snapshotErr
}

func (m *mockService) Ping(context.Context) error {
	return m.pingErr
}

func newTestServer(svc KnowledgeService) http.Handler {
	return NewServer(svc, log.NewNop()).Handler()
}

func TestServer_RoutesRegistered(t *testing.T) {
	handler := newTestServer(&mockService{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/ready"},
		{http.MethodGet, "/api/search?q=x"},
		{http.MethodGet, "/api/stats"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code, "%s %s", p.method, p.path)
	}
}

func TestServer_RecoversFromPanic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(mux, recoveryMiddleware(log.NewNop()), loggingMiddleware(log.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
