package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/engine"
	"github.com/talgya/heatsim/internal/persistence"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Run.Houseowners = 20
	cfg.Run.Plumbers = 2
	cfg.Run.Advisors = 1
	cfg.Run.Steps = 10
	require.NoError(t, cfg.Validate())
	m, err := engine.NewModel(cfg, nil)
	require.NoError(t, err)

	s := &Server{Model: m, Eng: engine.NewEngine(m), AdminKey: "admin", RelayKey: "relay"}
	h, cleanup := s.Handler()
	t.Cleanup(cleanup)
	return s, h
}

func get(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatus(t *testing.T) {
	s, h := newTestServer(t)
	require.NoError(t, s.Model.Step(context.Background()))

	var status map[string]any
	rec := get(t, h, "/api/v1/status", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "baseline", status["scenario"])
	assert.Equal(t, 1.0, status["tick"])
	assert.Equal(t, 20.0, status["houseowners"])
	assert.Equal(t, "Week 2, 2024", status["sim_time"])
}

func TestAgents(t *testing.T) {
	s, h := newTestServer(t)
	snap := s.Model.Snapshot()
	first := snap.Agents[0]

	var row engine.AgentRow
	rec := get(t, h, "/api/v1/agents/"+strconv.FormatUint(uint64(first.ID), 10), &row)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, row.ID)
	assert.Equal(t, first.Heating, row.Heating)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/agents/99999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/agents/abc", nil).Code)

	var rows []engine.AgentRow
	get(t, h, "/api/v1/agents?heating="+first.Heating, &rows)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, first.Heating, r.Heating)
	}
}

func TestCountersAndDistribution(t *testing.T) {
	s, h := newTestServer(t)
	for range 3 {
		require.NoError(t, s.Model.Step(context.Background()))
	}

	var flat map[string]map[string]int
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/counters", &flat).Code)
	assert.Contains(t, flat, "flows")
	assert.Contains(t, flat, "obstacles")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/counters?category=weather", nil).Code)

	var dist struct {
		Tick    int            `json:"tick"`
		Stages  map[string]int `json:"stages"`
		Heating map[string]int `json:"heating"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/distribution", &dist).Code)
	assert.Equal(t, 3, dist.Tick)
	total := 0
	for _, n := range dist.Stages {
		total += n
	}
	assert.Equal(t, 20, total)
}

func TestEventsFilter(t *testing.T) {
	s, h := newTestServer(t)
	s.Model.EmitEvent(engine.Event{Tick: 0, Description: "oil banned", Category: "market"})
	s.Model.EmitEvent(engine.Event{Tick: 0, Description: "campaign", Category: "scenario"})

	var events []engine.Event
	get(t, h, "/api/v1/events?category=market", &events)
	require.Len(t, events, 1)
	assert.Equal(t, "oil banned", events[0].Description)

	get(t, h, "/api/v1/events?limit=1", &events)
	require.Len(t, events, 1)
	assert.Equal(t, "campaign", events[0].Description)
}

func TestSpeedRequiresAdmin(t *testing.T) {
	s, h := newTestServer(t)

	post := func(auth, body string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(body))
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post("", `{"speed": 2}`))
	assert.Equal(t, http.StatusUnauthorized, post("wrong", `{"speed": 2}`))
	assert.Equal(t, http.StatusBadRequest, post("admin", `{"speed": -1}`))
	assert.Equal(t, http.StatusBadRequest, post("admin", `{`))
	assert.Equal(t, http.StatusOK, post("admin", `{"speed": 2}`))
	assert.Equal(t, 2.0, s.Eng.Speed())

	var speed map[string]float64
	get(t, h, "/api/v1/speed", &speed)
	assert.Equal(t, 2.0, speed["speed"])

	s.AdminKey = ""
	assert.Equal(t, http.StatusForbidden, post("admin", `{"speed": 3}`))
}

func TestHistoryNeedsDatabase(t *testing.T) {
	s, h := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/history/stages", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/jobs?all=true", nil).Code)

	ctx := context.Background()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer db.Close()
	rec, err := persistence.NewRecorder(ctx, db, s.Model)
	require.NoError(t, err)
	s.Model.Collector = rec
	s.DB, s.RunID = db, rec.RunID
	require.NoError(t, s.Model.Step(ctx))
	require.NoError(t, s.Model.Step(ctx))

	var series map[string]map[string]int
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/history/stages", &series).Code)
	assert.Len(t, series, 2)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/jobs?all=true", nil).Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t)
	s.RequestsPerSecond = 0.001
	h, cleanup := s.Handler()
	defer cleanup()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/status", nil).Code)
	rec := get(t, h, "/api/v1/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code, "buckets are per client")
}

func TestStreamAuth(t *testing.T) {
	s, h := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/v1/stream", nil).Code)

	s.RelayKey = ""
	assert.Equal(t, http.StatusForbidden, get(t, h, "/api/v1/stream", nil).Code)
}

func TestStreamPushesTicks(t *testing.T) {
	s, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer relay")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	next := func() engine.Snapshot {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				var snap engine.Snapshot
				require.NoError(t, json.Unmarshal([]byte(data), &snap))
				return snap
			}
		}
		t.Fatal("stream ended")
		return engine.Snapshot{}
	}

	assert.Equal(t, 0, next().Tick, "catch-up snapshot")

	require.NoError(t, s.Model.Step(context.Background()))
	require.Eventually(t, func() bool {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		return len(s.subs) == 1
	}, time.Second, time.Millisecond)
	s.Publish(s.Model.Snapshot())
	assert.Equal(t, 1, next().Tick)
}

func TestPublishDoesNotBlock(t *testing.T) {
	s, _ := newTestServer(t)
	id, ch := s.subscribe()
	defer s.unsubscribe(id)

	snap := s.Model.Snapshot()
	for range 10 {
		s.Publish(snap)
	}
	assert.Len(t, ch, cap(ch))
}
