package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wuhu-dev/wuhu/internal/config"
	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/storage"
	"github.com/wuhu-dev/wuhu/internal/subscription"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	transcript := storage.NewTranscriptStore(db)
	queue := storage.NewQueueStore(db, transcript)
	bus := event.NewBus()
	runners := runner.NewRegistry()

	cfg := &config.Config{
		Host: "127.0.0.1", Port: 0,
		Environments: []config.EnvironmentConfig{
			{Name: "local", Type: "local", Path: t.TempDir()},
		},
	}
	manager := session.NewManager(cfg, transcript, queue, runners, bus)
	hub := subscription.NewHub(bus, transcript, queue, manager)

	return New(cfg, DefaultOptions(), transcript, queue, manager, hub, runners)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func createTestSession(t *testing.T, s *Server) types.Session {
	t.Helper()
	sess, err := s.manager.CreateSession(context.Background(), session.CreateSessionParams{
		Environment: "local", ProviderID: "anthropic", ModelID: "claude",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestListSessions_Empty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v2/sessions", nil)
	w := httptest.NewRecorder()

	s.listSessions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sessions []types.Session
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(session.CreateSessionParams{Environment: "local", ProviderID: "anthropic", ModelID: "claude"})
	req := httptest.NewRequest(http.MethodPost, "/v2/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.createSession(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sess types.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected non-empty session id")
	}
}

func TestCreateSession_UnknownEnvironment(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(session.CreateSessionParams{Environment: "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/v2/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.createSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown environment, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t)
	sess := createTestSession(t, s)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v2/sessions/"+sess.ID, nil), "sessionID", sess.ID)
	w := httptest.NewRecorder()

	s.getSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out sessionWithTranscript
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Session.ID != sess.ID {
		t.Errorf("expected session %s, got %s", sess.ID, out.Session.ID)
	}
	if len(out.Transcript) == 0 {
		t.Error("expected the Header entry written at session creation")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestServer(t)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v2/sessions/nope", nil), "sessionID", "nope")
	w := httptest.NewRecorder()

	s.getSession(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSetModel_AppliesImmediatelyWhenIdle(t *testing.T) {
	s := newTestServer(t)
	sess := createTestSession(t, s)

	body, _ := json.Marshal(modelRequest{Provider: "openai", Model: "gpt-5", ReasoningEffort: "high"})
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v2/sessions/"+sess.ID+"/model", bytes.NewReader(body)), "sessionID", sess.ID)
	w := httptest.NewRecorder()

	s.setModel(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if applied, _ := out["applied"].(bool); !applied {
		t.Error("expected applied=true for an idle session")
	}
}

func TestStopSession_NoopWhenIdle(t *testing.T) {
	s := newTestServer(t)
	sess := createTestSession(t, s)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/v2/sessions/"+sess.ID+"/stop", nil), "sessionID", sess.ID)
	w := httptest.NewRecorder()

	s.stopSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListEnvironments(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v2/environments", nil)
	w := httptest.NewRecorder()

	s.listEnvironments(w, req)

	var infos []EnvironmentInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "local" {
		t.Errorf("expected one environment named local, got %+v", infos)
	}
}

func TestListRunners_Empty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v2/runners", nil)
	w := httptest.NewRecorder()

	s.listRunners(w, req)

	var infos []runner.Info
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no connected runners, got %d", len(infos))
	}
}
