/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package status exposes the kiosk's local observability endpoints: health,
// a JSON status snapshot, Prometheus metrics and a manual skip control.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/cache"
	"github.com/slateboard/slateboard/internal/clock"
	"github.com/slateboard/slateboard/internal/model"
	"github.com/slateboard/slateboard/internal/netsync"
	"github.com/slateboard/slateboard/internal/playback"
	"github.com/slateboard/slateboard/internal/telemetry"
	"github.com/slateboard/slateboard/internal/version"
)

// Server serves the local status API. It only reads from the other
// subsystems, except for the explicit skip control.
type Server struct {
	bind       string
	sync       *netsync.Client
	engine     *playback.Engine
	store      *cache.Cache
	clk        *clock.Clock
	metrics    *telemetry.Metrics
	scheduleFn func() model.Schedule
	logger     zerolog.Logger
}

// New wires a status server. scheduleFn returns the currently active
// schedule snapshot.
func New(bind string, sync *netsync.Client, engine *playback.Engine, store *cache.Cache, clk *clock.Clock, metrics *telemetry.Metrics, scheduleFn func() model.Schedule, logger zerolog.Logger) *Server {
	return &Server{
		bind:       bind,
		sync:       sync,
		engine:     engine,
		store:      store,
		clk:        clk,
		metrics:    metrics,
		scheduleFn: scheduleFn,
		logger:     logger.With().Str("component", "status").Logger(),
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.bind,
		Handler:      s.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("bind", s.bind).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.HTTPMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/cache", s.handleCache)
		r.Post("/playback/next", s.handleNext)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	Version    string        `json:"version"`
	Connected  bool          `json:"connected"`
	State      string        `json:"state"`
	ServerURL  string        `json:"server_url"`
	Hostname   string        `json:"hostname,omitempty"`
	PingMs     int64         `json:"ping_ms"`
	KioskTime  time.Time     `json:"kiosk_time"`
	Activity   string        `json:"activity,omitempty"`
	Current    *currentMedia `json:"current,omitempty"`
	CacheStats cacheSnapshot `json:"cache"`
}

type currentMedia struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Index int    `json:"index"`
}

type cacheSnapshot struct {
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"total_size"`
	MaxSize   int64 `json:"max_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.clk.Now()
	resp := statusResponse{
		Version:   version.Version,
		Connected: s.sync.Connected(),
		State:     string(s.engine.State()),
		ServerURL: s.sync.ServerURL(),
		Hostname:  s.sync.Hostname(),
		PingMs:    s.sync.LastPing(),
		KioskTime: now,
	}

	if item, index, ok := s.engine.Current(); ok {
		resp.Current = &currentMedia{Type: string(item.Type), URL: item.URL, Index: index}
	}
	sched := s.scheduleFn()
	if block := sched.ActivityAt(now); block != nil {
		resp.Activity = block.Name
	}

	st := s.store.Stats()
	resp.CacheStats = cacheSnapshot{
		Entries:   st.ItemCount,
		TotalSize: st.TotalSize,
		MaxSize:   st.MaxSize,
		Hits:      st.Hits,
		Misses:    st.Misses,
	}

	writeJSON(w, resp)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.Stats())
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.engine.Next()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
