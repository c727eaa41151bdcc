// Package server is the HTTP transport for the spider: one endpoint to run a
// crawl, one to check liveness. The blueprint is returned in-memory per call
// and never stored.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitspider/internal/config"
	"gitspider/internal/github"
	"gitspider/internal/logging"
	"gitspider/internal/render"
	"gitspider/internal/spider"
)

// Server exposes the crawl pipeline over HTTP. The renderer is shared across
// requests; each crawl gets its own session.
type Server struct {
	cfg      config.Config
	client   *github.Client
	renderer render.Renderer
	log      *zap.Logger
}

// New assembles a server over already-constructed collaborators.
func New(cfg config.Config, client *github.Client, renderer render.Renderer, log *zap.Logger) *Server {
	return &Server{cfg: cfg, client: client, renderer: renderer, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /crawl", s.handleCrawl)
	return mux
}

// ListenAndServe blocks serving the handler on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("listening", zap.String("addr", s.cfg.Server.Addr))
	logging.Server("Listening on %s", s.cfg.Server.Addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	type reqBody struct {
		RepoURL string `json:"repo_url"`
		Branch  string `json:"branch,omitempty"`
	}
	var body reqBody
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if body.RepoURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "repo_url is required"})
		return
	}

	// The session does not support mid-crawl cancellation on its own; the
	// whole call is bounded here instead.
	ctx := r.Context()
	if d := s.cfg.Server.CrawlTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	reqID := uuid.NewString()
	start := time.Now()
	s.log.Info("crawl started",
		zap.String("request_id", reqID),
		zap.String("repo_url", body.RepoURL),
		zap.String("branch", body.Branch))

	bp, err := spider.Crawl(ctx, s.cfg, s.client, s.renderer, body.RepoURL, body.Branch)
	if err != nil {
		s.log.Error("crawl failed",
			zap.String("request_id", reqID),
			zap.String("repo_url", body.RepoURL),
			zap.Error(err))
		logging.ServerError("Crawl of %s failed: %v", body.RepoURL, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	s.log.Info("crawl finished",
		zap.String("request_id", reqID),
		zap.String("repo", bp.Repo),
		zap.Int("files", bp.Stats.TotalFilesInTree),
		zap.Int("key_files", bp.Stats.TotalKeyFilesWithContent),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, bp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
