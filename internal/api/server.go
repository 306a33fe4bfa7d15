package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/config"
	"github.com/JakeFAU/linkpreview/internal/id/uuid"
	"github.com/JakeFAU/linkpreview/internal/links"
	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/metrics"
)

// maxBodyBytes bounds link create/update payloads.
const maxBodyBytes = 1 << 20

// LinkService is the link use-case surface the handlers call.
// *links.Service satisfies it.
type LinkService interface {
	Create(ctx context.Context, in links.Input) (linkpreview.Link, error)
	Update(ctx context.Context, id string, in links.Input) (linkpreview.Link, error)
	Get(ctx context.Context, id string) (linkpreview.Link, error)
	List(ctx context.Context, limit int) ([]linkpreview.Link, error)
	Thumbnail(ctx context.Context, id string) (linkpreview.Attachment, io.ReadCloser, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the link service.
type Server struct {
	router chi.Router
	links  LinkService
	ready  []ReadinessCheck
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc LinkService, cfg config.Config, logger *zap.Logger, checks ...ReadinessCheck) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		links:  svc,
		ready:  checks,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/links", func(r chi.Router) {
			r.Post("/", s.createLink)
			r.Get("/", s.listLinks)
			r.Route("/{link_id}", func(r chi.Router) {
				r.Get("/", s.getLink)
				r.Put("/", s.updateLink)
				r.Get("/thumbnail", s.getThumbnail)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, check := range s.ready {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) createLink(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}
	link, err := s.links.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, link)
}

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	out, err := s.links.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"links": out})
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	id, ok := s.linkID(w, r)
	if !ok {
		return
	}
	link, err := s.links.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, link)
}

func (s *Server) updateLink(w http.ResponseWriter, r *http.Request) {
	id, ok := s.linkID(w, r)
	if !ok {
		return
	}
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}
	link, err := s.links.Update(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, link)
}

func (s *Server) getThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.linkID(w, r)
	if !ok {
		return
	}
	att, body, err := s.links.Thumbnail(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer body.Close()

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if att.ByteSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(att.ByteSize, 10))
	}
	if att.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(att.Checksum))
	}
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(att.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("stream thumbnail failed", zap.String("link_id", id), zap.Error(err))
	}
}

func (s *Server) linkID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "link_id")
	if !uuid.Valid(id) {
		s.writeError(w, http.StatusNotFound, "link not found")
		return "", false
	}
	return id, true
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (links.Input, bool) {
	var in links.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return links.Input{}, false
	}
	return in, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, linkpreview.ErrValidation):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, linkpreview.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "link not found")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
