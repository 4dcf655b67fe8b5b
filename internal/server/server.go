// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes record writes, connector previews, the OAuth
// callback, metrics and health over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/oauth"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/pkg/errors"
)

// maxBodySize caps record payloads.
const maxBodySize = 1 << 20

// Runner sends a connector by id or name. automation.Dispatcher
// implements it.
type Runner interface {
	Run(ctx context.Context, ref string, ev record.Record, apply bool) (*connector.Connector, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

// Server routes HTTP requests to the record registry and the dispatcher.
type Server struct {
	records  *record.Registry
	hooks    *hook.Registry
	runner   Runner
	callback http.Handler
	gatherer prometheus.Gatherer
	health   HealthChecker
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithOAuthCallback mounts h at the OAuth callback path.
func WithOAuthCallback(h http.Handler) Option {
	return func(s *Server) { s.callback = h }
}

// WithMetrics serves g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHealthCheck adds a dependency check to /healthz.
func WithHealthCheck(fn HealthChecker) Option {
	return func(s *Server) { s.health = fn }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router. records must hold hook-observed repositories for
// automations to fire on writes made through the server.
func New(records *record.Registry, hooks *hook.Registry, runner Runner, opts ...Option) *Server {
	s := &Server{
		records: records,
		hooks:   hooks,
		runner:  runner,
		logger:  slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.WithComponent(s.logger, "server")

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /records/{type}", s.handleCreate)
	s.mux.HandleFunc("GET /records/{type}/{id}", s.handleGet)
	s.mux.HandleFunc("PATCH /records/{type}/{id}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /records/{type}/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /records/{type}/{id}/onchange", s.handleOnChange)
	s.mux.HandleFunc("POST /connectors/{id}/send", s.handleSend)
	if s.callback != nil {
		s.mux.Handle(oauth.CallbackPath, s.callback)
	}
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.HTTPMiddleware(s.logger, s.mux).ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

type recordView struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

func viewOf(e *record.Entity) recordView {
	values := e.Values
	if values == nil {
		values = map[string]any{}
	}
	return recordView{Type: e.Type, ID: e.ID, Values: values}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	repo, err := s.records.Repository(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := repo.Create(r.Context(), values)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(e))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := s.records.Resolve(r.Context(), record.Ref{EntityType: r.PathValue("type"), ID: r.PathValue("id")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	repo, err := s.records.Repository(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, err := repo.Update(r.Context(), r.PathValue("id"), values)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	repo, err := s.records.Repository(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := repo.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleOnChange raises a change event for unsaved form values. Listeners
// see the stored record overlaid with the posted values. The response is
// the stored record after listeners ran, so write-backs are visible.
func (s *Server) handleOnChange(w http.ResponseWriter, r *http.Request) {
	ref := record.Ref{EntityType: r.PathValue("type"), ID: r.PathValue("id")}
	stored, err := s.records.Resolve(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := decodeValues(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ev := hook.Event{
		Kind:      hook.EventChange,
		Record:    stored.WithValues(values),
		OldValues: stored.Values,
		Changed:   hook.ChangedFields(values),
		Timestamp: time.Now(),
	}
	if err := s.hooks.Notify(r.Context(), ev); err != nil {
		s.logger.Warn("onchange listeners failed", log.Error(err))
	}

	after, err := s.records.Resolve(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(after))
}

// handleSend runs a connector. Without ?apply=true it is a preview: the
// response is stored on the connector but nothing is written to records.
// ?record=type:id selects the event record.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var ev record.Record
	if raw := r.URL.Query().Get("record"); raw != "" {
		ref, err := record.ParseRef(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		e, err := s.records.Resolve(r.Context(), ref)
		if err != nil {
			writeError(w, err)
			return
		}
		ev = e
	}
	apply := r.URL.Query().Get("apply") == "true"

	c, err := s.runner.Run(r.Context(), r.PathValue("id"), ev, apply)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func decodeValues(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	values := map[string]any{}
	if len(body) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, &errors.ValidationError{Field: "body", Message: "body must be a JSON object: " + err.Error()}
	}
	return values, nil
}
