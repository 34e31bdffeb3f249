// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/engine"
	"github.com/talgya/heatsim/internal/persistence"
)

const maxSSEConns = 2

// Server serves the simulation state over HTTP.
type Server struct {
	Model    *engine.Model
	Eng      *engine.Engine
	DB       *persistence.DB // optional, enables run history
	RunID    string
	Addr     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for the SSE stream. Empty = streaming disabled.

	// RequestsPerSecond bounds public requests per client IP, 0 disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Active SSE connection count (atomic).
	sseConns int32

	subMu   sync.Mutex
	subs    map[int]chan *engine.Snapshot
	nextSub int
}

// Handler builds the routed handler. The returned cleanup releases the
// rate limiter.
func (s *Server) Handler() (http.Handler, func()) {
	mux := http.NewServeMux()

	limiter := NewRateLimiter(s.RequestsPerSecond, max(1, s.Burst))
	public := func(h http.HandlerFunc) http.HandlerFunc {
		if s.RequestsPerSecond <= 0 {
			return h
		}
		return RateLimitMiddleware(limiter, h)
	}

	mux.HandleFunc("GET /api/v1/status", public(s.handleStatus))
	mux.HandleFunc("GET /api/v1/counters", public(s.handleCounters))
	mux.HandleFunc("GET /api/v1/distribution", public(s.handleDistribution))
	mux.HandleFunc("GET /api/v1/agents", public(s.handleAgents))
	mux.HandleFunc("GET /api/v1/agents/{id}", public(s.handleAgentDetail))
	mux.HandleFunc("GET /api/v1/jobs", public(s.handleJobs))
	mux.HandleFunc("GET /api/v1/queues", public(s.handleQueues))
	mux.HandleFunc("GET /api/v1/events", public(s.handleEvents))
	mux.HandleFunc("GET /api/v1/history/stages", public(s.handleStageHistory))

	// SSE streaming endpoint (GET, requires bearer token, relay only).
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux), limiter.Close
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	handler, cleanup := s.Handler()
	defer cleanup()

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("HTTP API stopped")
	return nil
}

// Publish hands a fresh snapshot to every stream subscriber. Slow
// subscribers miss ticks rather than block the engine.
func (s *Server) Publish(snap *engine.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Server) subscribe() (int, <-chan *engine.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan *engine.Snapshot)
	}
	s.nextSub++
	ch := make(chan *engine.Snapshot, 4)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

func (s *Server) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, id)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken reports whether the request carries the given token.
func checkBearerToken(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no HEATSIM_API_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !checkBearerToken(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// snapshot returns the latest snapshot or answers 503 when none exists.
func (s *Server) snapshot(w http.ResponseWriter) (*engine.Snapshot, bool) {
	snap := s.Model.Snapshot()
	if snap == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return snap, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	cfg := s.Model.Env.Cfg
	status := map[string]any{
		"scenario":    s.Model.Scenario.Name,
		"run_id":      s.RunID,
		"tick":        snap.Tick,
		"steps":       cfg.Run.Steps,
		"sim_time":    engine.SimTime(cfg.Run.StartYear, snap.Tick),
		"year":        snap.Year,
		"speed":       s.Eng.Speed(),
		"running":     s.Eng.Running(),
		"houseowners": len(snap.Agents),
		"triggers":    snap.Triggers,
		"spending":    snap.Counters.Spending,
		"effort":      snap.Counters.Effort,
	}
	writeJSON(w, status)
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	flat := snap.Counters.Flat()
	if c := r.URL.Query().Get("category"); c != "" {
		values, ok := flat[c]
		if !ok {
			http.Error(w, "unknown counter category", http.StatusNotFound)
			return
		}
		writeJSON(w, values)
		return
	}
	writeJSON(w, flat)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"tick":    snap.Tick,
		"stages":  snap.Stages,
		"heating": snap.Distribution,
	})
}

// handleAgents lists houseowners, optionally filtered by stage, milieu or
// heating system.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	stage, milieu, heating := q.Get("stage"), q.Get("milieu"), q.Get("heating")

	rows := make([]engine.AgentRow, 0, len(snap.Agents))
	for _, a := range snap.Agents {
		if stage != "" && a.Stage != stage {
			continue
		}
		if milieu != "" && a.Milieu != milieu {
			continue
		}
		if heating != "" && a.Heating != heating {
			continue
		}
		rows = append(rows, a)
	}
	writeJSON(w, rows)
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid agent ID", http.StatusBadRequest)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	row, ok := snap.Agent(agents.AgentID(id))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, row)
}

// handleJobs returns the jobs of the latest tick, or the whole recorded
// job log with ?all=true when a database is attached.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if s.DB == nil {
			http.Error(w, "no database attached", http.StatusNotFound)
			return
		}
		jobs, err := s.DB.CompletedJobs(r.Context(), s.RunID)
		if err != nil {
			slog.Error("job log query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, jobs)
		return
	}
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, snap.Jobs)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"tick":    snap.Tick,
		"lengths": snap.Queues,
		"backlog": snap.Backlog,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Model.Events()

	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleStageHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "no database attached", http.StatusNotFound)
		return
	}
	series, err := s.DB.StageSeries(r.Context(), s.RunID)
	if err != nil {
		slog.Error("stage history query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, series)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleStream provides an SSE endpoint that pushes a summary after
// every tick. Requires bearer token auth and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !checkBearerToken(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.subscribe()
	defer s.unsubscribe(subID)

	if snap := s.Model.Snapshot(); snap != nil {
		writeSSESnapshot(w, snap)
	}
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case snap := <-ch:
			writeSSESnapshot(w, snap)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSESnapshot writes a single tick summary in SSE format.
func writeSSESnapshot(w http.ResponseWriter, snap *engine.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: tick\ndata: %s\n\n", data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
