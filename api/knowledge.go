package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/staffv/kbstore/internal/ingest"
	"github.com/staffv/kbstore/internal/log"
	"github.com/staffv/kbstore/internal/search"
)

// maxIngestBody caps request bodies for ingestion endpoints (8 MiB).
const maxIngestBody = 8 << 20

// KnowledgeHandler handles search, ingestion and stats endpoints.
type KnowledgeHandler struct {
	svc    KnowledgeService
	logger log.Logger
}

// NewKnowledgeHandler creates a knowledge handler.
func NewKnowledgeHandler(svc KnowledgeService, logger log.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.search)
	mux.HandleFunc("POST /api/ingest/url", h.ingestURL)
	mux.HandleFunc("POST /api/ingest/manual", h.ingestManual)
	mux.HandleFunc("GET /api/stats", h.stats)
}

// SearchResult is one hit in a search response.
type SearchResult struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	SourceType string  `json:"source_type"`
	SourceURL  string  `json:"source_url,omitempty"`
	Signal     string  `json:"signal"`
	Similarity float64 `json:"similarity,omitempty"`
}

// SearchResponse is the body of a search response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

func (h *KnowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_query", "q parameter is required")
		return
	}
	caller := r.URL.Query().Get("caller")
	if caller == "" {
		caller = "api"
	}

	opts, err := searchOptions(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	results, err := h.svc.Search(r.Context(), caller, query, opts...)
	if err != nil {
		h.logger.Error("search failed", "query", query, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "search_failed", err.Error())
		return
	}

	resp := SearchResponse{Query: query, Results: make([]SearchResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, SearchResult{
			ID:         res.Entry.ID,
			Title:      res.Entry.Title,
			Content:    res.Entry.Content,
			SourceType: string(res.Entry.SourceType),
			SourceURL:  res.Entry.SourceURL,
			Signal:     string(res.Signal),
			Similarity: res.Similarity,
		})
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// IngestURLRequest is the body of an ingest/url request. The caller
// supplies the already-fetched page HTML.
type IngestURLRequest struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// IngestManualRequest is the body of an ingest/manual request.
type IngestManualRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// IngestResponse reports the outcome of an ingestion request.
type IngestResponse struct {
	EntryID  string `json:"entry_id"`
	State    string `json:"state"`
	Embedded bool   `json:"embedded"`
	Rescrape bool   `json:"rescrape,omitempty"`
}

func (h *KnowledgeHandler) ingestURL(w http.ResponseWriter, r *http.Request) {
	var req IngestURLRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.URL == "" || req.HTML == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "url and html are required")
		return
	}

	res, err := h.svc.IngestURL(r.Context(), []byte(req.HTML), req.URL)
	if err != nil {
		h.writeIngestError(w, req.URL, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toIngestResponse(res))
}

func (h *KnowledgeHandler) ingestManual(w http.ResponseWriter, r *http.Request) {
	var req IngestManualRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	res, err := h.svc.IngestManual(r.Context(), req.Title, req.Content)
	if err != nil {
		h.writeIngestError(w, req.Title, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toIngestResponse(res))
}

// StatsResponse is the body of a stats response.
type StatsResponse struct {
	TotalEntries       int64      `json:"total_entries"`
	URLEntries         int64      `json:"url_entries"`
	DocumentEntries    int64      `json:"document_entries"`
	ManualEntries      int64      `json:"manual_entries"`
	EmbeddedEntries    int64      `json:"embedded_entries"`
	PendingEmbedding   int64      `json:"pending_embedding"`
	TrackedURLs        int64      `json:"tracked_urls"`
	UploadedDocuments  int64      `json:"uploaded_documents"`
	ProcessedDocuments int64      `json:"processed_documents"`
	LastUpdatedAt      *time.Time `json:"last_updated_at,omitempty"`
}

func (h *KnowledgeHandler) stats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("stats snapshot failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}

	resp := StatsResponse{
		TotalEntries:       snap.TotalEntries,
		URLEntries:         snap.URLEntries,
		DocumentEntries:    snap.DocumentEntries,
		ManualEntries:      snap.ManualEntries,
		EmbeddedEntries:    snap.EmbeddedEntries,
		PendingEmbedding:   snap.PendingEmbedding,
		TrackedURLs:        snap.TrackedURLs,
		UploadedDocuments:  snap.UploadedDocuments,
		ProcessedDocuments: snap.ProcessedDocuments,
	}
	if !snap.LastUpdatedAt.IsZero() {
		resp.LastUpdatedAt = &snap.LastUpdatedAt
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// writeIngestError maps normalization failures to 422 and everything else
// to 500.
func (h *KnowledgeHandler) writeIngestError(w http.ResponseWriter, subject string, err error) {
	if errors.Is(err, ingest.ErrNormalization) {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "no_extractable_content", err.Error())
		return
	}
	h.logger.Error("ingestion failed", "subject", subject, "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, "ingest_failed", err.Error())
}

func toIngestResponse(res ingest.Result) IngestResponse {
	return IngestResponse{
		EntryID:  res.EntryID,
		State:    string(res.State),
		Embedded: res.Embedded,
		Rescrape: res.Rescrape,
	}
}

// searchOptions parses the optional threshold and limit query parameters.
func searchOptions(r *http.Request) ([]search.Option, error) {
	var opts []search.Option
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q", raw)
		}
		opts = append(opts, search.WithThreshold(threshold))
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid limit %q", raw)
		}
		opts = append(opts, search.WithLimit(limit))
	}
	return opts, nil
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
