// Package server exposes the scrape trigger and read-only views over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/ingestion"
	"github.com/poiesic/itk/search"
	"github.com/poiesic/itk/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	msgTriggered  = "Scraping triggered successfully"
	msgInProgress = "Scraping already in progress"

	maxSearchLimit = 50
)

// Cycles starts scrape cycles and reports whether one is running.
type Cycles interface {
	Trigger(ctx context.Context) error
	Running() bool
}

// Searcher answers similarity queries.
type Searcher interface {
	Search(ctx context.Context, query, company string, limit int) ([]*core.SearchResult, error)
}

// Config holds the server's collaborators. Runs, Searcher, and Gatherer
// are optional; their routes answer 404 when unset.
type Config struct {
	Cycles   Cycles
	Runs     storage.RunRepository
	Searcher Searcher
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{cfg: cfg, logger: logger.With("component", "server")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(h.logger))

	r.Get("/health", h.health)
	r.Post("/scrape", h.triggerScrape)
	if cfg.Runs != nil {
		r.Get("/scrape/status", h.scrapeStatus)
	}
	if cfg.Searcher != nil {
		r.Get("/search", h.search)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// New returns an http.Server for addr serving NewRouter(cfg).
func New(addr string, cfg Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type handlers struct {
	cfg    Config
	logger *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerScrape starts a cycle and answers immediately. A cycle already in
// flight is reported as accepted since the caller's intent is satisfied.
func (h *handlers) triggerScrape(w http.ResponseWriter, r *http.Request) {
	err := h.cfg.Cycles.Trigger(r.Context())
	switch {
	case err == nil:
		h.logger.Info("scrape triggered", "request_id", middleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusAccepted, MessageResponse{Message: msgTriggered})
	case errors.Is(err, ingestion.ErrCycleInProgress):
		writeJSON(w, http.StatusAccepted, MessageResponse{Message: msgInProgress})
	default:
		h.logger.Error("failed to trigger scrape", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger scrape")
	}
}

type statusResponse struct {
	Running bool     `json:"running"`
	LastRun *runView `json:"last_run"`
}

type runView struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	URLs           int       `json:"urls"`
	Documents      int       `json:"documents"`
	Sentinels      int       `json:"sentinels"`
	Unattributed   int       `json:"unattributed"`
	Entities       int       `json:"entities"`
	FailedEntities []string  `json:"failed_entities,omitempty"`
	Error          string    `json:"error,omitempty"`
	Succeeded      bool      `json:"succeeded"`
}

func newRunView(run *core.Run) *runView {
	if run == nil {
		return nil
	}
	return &runView{
		ID:             run.Id,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		URLs:           run.URLs,
		Documents:      run.Documents,
		Sentinels:      run.Sentinels,
		Unattributed:   run.Unattributed,
		Entities:       run.Entities,
		FailedEntities: run.FailedEntities,
		Error:          run.Error,
		Succeeded:      run.Succeeded(),
	}
}

func (h *handlers) scrapeStatus(w http.ResponseWriter, r *http.Request) {
	run, err := h.cfg.Runs.LastRun(r.Context())
	if err != nil {
		h.logger.Error("failed to load last run", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load last run")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Running: h.cfg.Cycles.Running(),
		LastRun: newRunView(run),
	})
}

type searchHit struct {
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Score     float32   `json:"score"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Company string      `json:"company,omitempty"`
	Results []searchHit `json:"results"`
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	company := r.URL.Query().Get("company")

	limit := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 || k > maxSearchLimit {
			writeError(w, http.StatusBadRequest, "k must be an integer between 1 and 50")
			return
		}
		limit = k
	}

	results, err := h.cfg.Searcher.Search(r.Context(), query, company, limit)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "q is required")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "no indexed content for company")
		return
	case err != nil:
		h.logger.Error("search failed", "query", query, "company", company, "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponse{Query: query, Company: company, Results: make([]searchHit, len(results))}
	for i, res := range results {
		resp.Results[i] = searchHit{
			Text:      res.Chunk.Text,
			Source:    res.Chunk.Source,
			FetchedAt: res.Chunk.FetchedAt,
			Score:     res.Score,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
