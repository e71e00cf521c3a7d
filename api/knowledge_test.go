package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffv/kbstore/internal/entry"
	"github.com/staffv/kbstore/internal/ingest"
	"github.com/staffv/kbstore/internal/search"
	"github.com/staffv/kbstore/internal/stats"
)

func TestKnowledgeHandler_Search(t *testing.T) {
	svc := &mockService{
		searchResults: []search.Result{
			{
				Entry: entry.Entry{
					ID:         "e1",
					SourceType: entry.SourceTypeURL,
					SourceURL:  "https://example.com",
					Title:      "Guide",
					Content:    "Content.",
				},
				Similarity: 0.91,
				Signal:     search.SignalBoth,
			},
		},
	}
	handler := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=guide&caller=chatbot", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chatbot", svc.gotCaller)
	assert.Equal(t, "guide", svc.gotQuery)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "e1", resp.Results[0].ID)
	assert.Equal(t, "both", resp.Results[0].Signal)
	assert.InDelta(t, 0.91, resp.Results[0].Similarity, 1e-9)
}

func TestKnowledgeHandler_Search_MissingQuery(t *testing.T) {
	handler := newTestServer(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeHandler_Search_Overrides(t *testing.T) {
	svc := &mockService{}
	handler := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=x&threshold=0.7&limit=5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.gotOpts)
}

func TestKnowledgeHandler_Search_InvalidThreshold(t *testing.T) {
	handler := newTestServer(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=x&threshold=high", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeHandler_Search_DefaultCaller(t *testing.T) {
	svc := &mockService{}
	handler := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "api", svc.gotCaller)
}

func TestKnowledgeHandler_IngestManual(t *testing.T) {
	svc := &mockService{
		ingestResult: ingest.Result{EntryID: "e1", State: ingest.StateStored, Embedded: true},
	}
	handler := newTestServer(svc)

	body := `{"title":"Policy","content":"Receipts required."}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/manual", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.EntryID)
	assert.Equal(t, "stored", resp.State)
	assert.True(t, resp.Embedded)
}

func TestKnowledgeHandler_IngestManual_NormalizationFailure(t *testing.T) {
	svc := &mockService{
		ingestErr: fmt.Errorf("ingest: %w", ingest.ErrNormalization),
	}
	handler := newTestServer(svc)

	body := `{"title":"Policy","content":""}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/manual", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestKnowledgeHandler_IngestURL_MissingFields(t *testing.T) {
	handler := newTestServer(&mockService{})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeHandler_IngestURL_UnknownFields(t *testing.T) {
	handler := newTestServer(&mockService{})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{"bogus":true}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeHandler_Stats(t *testing.T) {
	svc := &mockService{
		snapshot: stats.Snapshot{TotalEntries: 5, EmbeddedEntries: 4, PendingEmbedding: 1},
	}
	handler := newTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.TotalEntries)
	assert.Nil(t, resp.LastUpdatedAt)
}

func TestKnowledgeHandler_Stats_Failure(t *testing.T) {
	handler := newTestServer(&mockService{snapshotErr: errors.New("connection reset")})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
