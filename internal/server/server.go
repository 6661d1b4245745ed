// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package server exposes the engine over HTTP: webhook intake, manual
// dispatch and run status. The engine stays transport-agnostic; this is
// one adapter over it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vk/loomci/internal/ctxlog"
	"github.com/vk/loomci/internal/dispatch"
	"github.com/vk/loomci/internal/engine"
	"github.com/vk/loomci/internal/model"
	"github.com/vk/loomci/internal/run"
)

type Server struct {
	engine *engine.Engine
	http   *http.Server
}

func New(addr string, eng *engine.Engine) *Server {
	s := &Server{engine: eng}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/events/{type}", s.handleEvent)
	r.Post("/workflows/{name}/dispatch", s.handleDispatch)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the context ends, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	ctxlog.FromContext(ctx).Info("🌐 Listening", "addr", s.http.Addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type eventRequest struct {
	Repository string         `json:"repository"`
	Actor      string         `json:"actor"`
	Ref        string         `json:"ref"`
	SHA        string         `json:"sha"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event body")
		return
	}

	ev := &model.Event{
		Type:       chi.URLParam(r, "type"),
		Repository: req.Repository,
		Actor:      req.Actor,
		Ref:        req.Ref,
		SHA:        req.SHA,
		Action:     req.Action,
		Payload:    req.Payload,
	}
	started := s.engine.HandleEvent(r.Context(), ev)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"event":   ev.Type,
		"started": started,
	})
}

type dispatchRequest struct {
	Inputs map[string]string `json:"inputs"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed dispatch body")
			return
		}
	}

	name := chi.URLParam(r, "name")
	err := s.engine.DispatchManual(r.Context(), name, req.Inputs)

	var unknown *dispatch.UnknownWorkflowError
	var noManual *dispatch.NoManualTriggerError
	switch {
	case errors.As(err, &unknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &noManual):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow": name})
	}
}

type runSummary struct {
	ID       string       `json:"id"`
	Workflow string       `json:"workflow"`
	Event    string       `json:"event"`
	Status   string       `json:"status"`
	Jobs     []jobSummary `json:"jobs,omitempty"`
}

type jobSummary struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func summarize(r *run.Run, withJobs bool) runSummary {
	out := runSummary{
		ID:       r.ID,
		Workflow: r.Workflow.Name,
		Event:    r.Event.Type,
		Status:   r.Status().String(),
	}
	if !withJobs {
		return out
	}
	for _, exec := range r.Executions() {
		out.Jobs = append(out.Jobs, jobSummary{
			ID:     exec.ID,
			State:  exec.State().String(),
			Reason: string(exec.Reason()),
		})
	}
	return out
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.engine.Runs()
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, summarize(r, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stored, ok := s.engine.Run(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}
	writeJSON(w, http.StatusOK, summarize(stored, true))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
