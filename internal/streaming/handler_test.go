package streaming

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) (*chi.Mux, *InMemoryRegistry, *Queue) {
	t.Helper()
	reg := NewInMemoryRegistry()
	q := NewQueue()
	svc := NewService(reg, q, SchedulerConfig{Policy: PolicyRR, Quantum: 10})
	r := chi.NewRouter()
	NewHandler(svc, testLogger()).Routes(r)
	return r, reg, q
}

func TestHandler_Health(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_ListSessions(t *testing.T) {
	r, reg, q := newTestRouter(t)
	s := NewTCPSession(nil, "480p")
	reg.Track(s.info(StateQueued))
	_ = q.Push(s)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Policy != PolicyRR || sum.Quantum != 10 || sum.Queued != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Sessions) != 1 || sum.Sessions[0].ID != s.ID || sum.Sessions[0].Budget != 50 {
		t.Errorf("sessions = %+v", sum.Sessions)
	}
	if sum.Counts[StateQueued] != 1 {
		t.Errorf("counts = %v", sum.Counts)
	}
}

func TestHandler_GetSession(t *testing.T) {
	r, reg, _ := newTestRouter(t)
	s := NewUDPSession(nil, "720p")
	reg.Track(s.info(StateQueued))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+string(s.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Mode != ModeUDP || info.Resolution != Res720p || info.State != StateQueued {
		t.Errorf("info = %+v", info)
	}
}

func TestHandler_GetSession_not_found(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
