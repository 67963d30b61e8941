// Copyright 2024-2026 Aiku AI

// Package api serves the conversation controller over HTTP with JSON
// request and response bodies.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
)

// maxBodySize is the maximum allowed request body (1 MB).
const maxBodySize = 1 << 20

// Backend provides the current session. ReloadDirectory starts a new session
// with a fresh directory snapshot and returns it.
type Backend interface {
	Controller() *conversation.Controller
	ReloadDirectory(ctx context.Context) *conversation.Directory
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend  Backend
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	mux      *http.ServeMux
}

// NewServer creates a Server. A nil gatherer serves the default registry on
// /metrics.
func NewServer(backend Backend, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		backend:  backend,
		gatherer: gatherer,
		log:      log.With().Str("component", "api").Logger(),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/scopes/{scope}/posts", s.HandleCreatePost)
	s.mux.HandleFunc("GET /api/scopes/{scope}/posts", s.HandleListThread)
	s.mux.HandleFunc("POST /api/posts/{id}/replies", s.HandleCreateReply)
	s.mux.HandleFunc("GET /api/posts/{id}/replies", s.HandleListReplies)
	s.mux.HandleFunc("POST /api/suggestions", s.HandleSuggest)
	s.mux.HandleFunc("POST /api/suggestions/apply", s.HandleApplySuggestion)
	s.mux.HandleFunc("GET /api/directory", s.HandleDirectory)
	s.mux.HandleFunc("POST /api/reload-directory", s.HandleReloadDirectory)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /health", s.HandleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("Stopping API server")
	return server.Shutdown(shutdownCtx)
}

type submitRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

type suggestRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

type applyRequest struct {
	Text        string `json:"text"`
	AtIndex     int    `json:"at_index"`
	Cursor      int    `json:"cursor"`
	DisplayName string `json:"display_name"`
}

type applyResponse struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

// HandleCreatePost is an HTTP handler for POST /api/scopes/{scope}/posts.
func (s *Server) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	scope := r.PathValue("scope")
	item, err := s.backend.Controller().SubmitPost(r.Context(), scope, conversation.AuthorContext{Name: req.Author}, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Str("scope_id", scope).Str("item_id", item.ID).Msg("Post created")
	s.writeJSON(w, http.StatusCreated, item)
}

// HandleCreateReply is an HTTP handler for POST /api/posts/{id}/replies.
func (s *Server) HandleCreateReply(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	parentID := r.PathValue("id")
	item, err := s.backend.Controller().SubmitReply(r.Context(), parentID, conversation.AuthorContext{Name: req.Author}, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Str("parent_id", parentID).Str("item_id", item.ID).Msg("Reply created")
	s.writeJSON(w, http.StatusCreated, item)
}

// HandleListThread is an HTTP handler for GET /api/scopes/{scope}/posts.
func (s *Server) HandleListThread(w http.ResponseWriter, r *http.Request) {
	items, err := s.backend.Controller().Thread(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(items))
}

// HandleListReplies is an HTTP handler for GET /api/posts/{id}/replies.
func (s *Server) HandleListReplies(w http.ResponseWriter, r *http.Request) {
	items, err := s.backend.Controller().Replies(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(items))
}

// HandleSuggest is an HTTP handler for POST /api/suggestions.
func (s *Server) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	suggestions := s.backend.Controller().TextChanged(req.Text, req.Cursor)
	s.writeJSON(w, http.StatusOK, nonNil(suggestions))
}

// HandleApplySuggestion is an HTTP handler for POST /api/suggestions/apply.
func (s *Server) HandleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		http.Error(w, "display_name is required", http.StatusBadRequest)
		return
	}
	text, cursor := s.backend.Controller().SuggestionSelected(req.Text, req.AtIndex, req.Cursor, req.DisplayName)
	s.writeJSON(w, http.StatusOK, applyResponse{Text: text, Cursor: cursor})
}

// HandleDirectory is an HTTP handler for GET /api/directory.
func (s *Server) HandleDirectory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.backend.Controller().Directory().Identities()))
}

// HandleReloadDirectory is an HTTP handler for POST /api/reload-directory.
// It starts a new session so later submissions resolve against a fresh
// snapshot. Dispatches already running keep the snapshot they started with.
func (s *Server) HandleReloadDirectory(w http.ResponseWriter, r *http.Request) {
	s.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("Directory reload requested")

	dir := s.backend.ReloadDirectory(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]int{"identities": dir.Len()})
}

// HandleHealth is an HTTP handler for GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if err = json.Unmarshal(body, into); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}

// StatusFor maps controller errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrParentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Int("status", status).Msg("Failed to write response")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
