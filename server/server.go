// Package server exposes the publication pipeline over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kb_article_publisher/publisher"
	"kb_article_publisher/registry"
)

const runTimeout = 120 * time.Second

type Server struct {
	pub    *publisher.Publisher
	logger *zap.Logger
}

func New(pub *publisher.Publisher, logger *zap.Logger) (*Server, error) {
	if pub == nil {
		return nil, errors.New("publisher required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pub: pub, logger: logger}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/publish", s.handlePublish)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/health", s.handleHealth)
	return s.logMiddleware(mux)
}

// --- Handlers ---

type publishReq struct {
	SOPMarkdown   string   `json:"sop_markdown"`
	KBBaseSysID   string   `json:"kb_base_sys_id"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	Publish       bool     `json:"publish,omitempty"`
	ExistingSysID string   `json:"existing_sys_id,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SOPMarkdown == "" {
		http.Error(w, "sop_markdown is required", http.StatusBadRequest)
		return
	}
	if req.KBBaseSysID == "" && req.ExistingSysID == "" {
		http.Error(w, "kb_base_sys_id or existing_sys_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	result, err := s.pub.Run(ctx, publisher.RunParams{
		SOPMarkdown:   req.SOPMarkdown,
		KBBaseSysID:   req.KBBaseSysID,
		Category:      req.Category,
		Tags:          req.Tags,
		Attachments:   req.Attachments,
		Publish:       req.Publish,
		ExistingSysID: req.ExistingSysID,
	})
	if err != nil {
		http.Error(w, err.Error(), statusForRunError(err))
		return
	}
	writeJSON(w, result)
}

// statusForRunError maps pre-write plan failures to 422 and everything
// else (backend/store trouble) to 502.
func statusForRunError(err error) int {
	var malformed *publisher.MalformedPlanError
	var violation *publisher.SchemaViolationError
	if errors.As(err, &malformed) || errors.As(err, &violation) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, registry.Fixed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
