package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wuhu-dev/wuhu/internal/session"
	"github.com/wuhu-dev/wuhu/internal/subscription"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// listSessions handles `GET /v2/sessions?limit=`.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	sessions, err := s.transcript.ListSessions(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles `POST /v2/sessions`.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var params session.CreateSessionParams
	if !decodeJSON(w, r, &params) {
		return
	}
	sess, err := s.manager.CreateSession(r.Context(), params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type sessionWithTranscript struct {
	Session    types.Session `json:"session"`
	Transcript []types.Entry `json:"transcript"`
}

// getSession handles `GET /v2/sessions/{id}?sinceCursor=&sinceTime=`.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.transcript.GetSession(r.Context(), id)
	if err != nil {
		writeNotFound(w, "unknown session "+id)
		return
	}
	entries, err := s.transcript.Read(r.Context(), id, queryInt64Ptr(r, "sinceCursor"), queryInt64Ptr(r, "sinceTime"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionWithTranscript{Session: sess, Transcript: entries})
}

type promptRequest struct {
	Input  string `json:"input"`
	User   string `json:"user,omitempty"`
	Detach bool   `json:"detach,omitempty"`
}

// promptSession handles `POST /v2/sessions/{id}/prompt`. With
// detach=true it returns the appended user entry (or queued item)
// immediately; otherwise it streams the turn as SSE until the session
// returns to idle.
func (s *Server) promptSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req promptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Input == "" {
		writeBadRequest(w, "input is required")
		return
	}
	content := types.ContentList{types.TextContent{Text: req.Input}}
	user := req.User
	if user == "" {
		user = "user"
	}

	actor, err := s.manager.GetOrCreate(r.Context(), id)
	if err != nil {
		writeNotFound(w, "unknown session "+id)
		return
	}

	if req.Detach {
		entry, item, err := actor.Prompt(r.Context(), user, content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"userEntry": entry, "queuedItem": item})
		return
	}

	_, sub, err := s.hub.Subscribe(r.Context(), id, subscription.Cursors{})
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer sub.Close()

	if _, _, err := actor.Prompt(r.Context(), user, content); err != nil {
		writeAppError(w, err)
		return
	}

	streamSession(w, r, sub, false, time.Time{})
}

type stopRequest struct {
	User string `json:"user,omitempty"`
}

// stopSession handles `POST /v2/sessions/{id}/stop`.
func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req stopRequest
	_ = decodeJSONOptional(r, &req)

	actor, err := s.manager.GetOrCreate(r.Context(), id)
	if err != nil {
		writeNotFound(w, "unknown session "+id)
		return
	}
	stopEntry, repaired, err := actor.Stop(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopEntry": stopEntry, "repairedEntries": repaired})
}

type modelRequest struct {
	Provider        string `json:"provider"`
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

// setModel handles `POST /v2/sessions/{id}/model`.
func (s *Server) setModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req modelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor, err := s.manager.GetOrCreate(r.Context(), id)
	if err != nil {
		writeNotFound(w, "unknown session "+id)
		return
	}
	applied, err := actor.SetModel(r.Context(), req.Provider, req.Model, req.ReasoningEffort)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied":   applied,
		"selection": types.Settings{ProviderID: req.Provider, ModelID: req.Model, ReasoningEffort: req.ReasoningEffort},
	})
}

// followSession handles
// `GET /v2/sessions/{id}/follow?sinceCursor=&sinceTime=&stopAfterIdle=&timeoutSeconds=`.
func (s *Server) followSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	cursors := subscription.Cursors{
		TranscriptSince: queryInt64Ptr(r, "sinceCursor"),
		SystemSince:     queryInt64Ptr(r, "systemSinceCursor"),
		SteerSince:      queryInt64Ptr(r, "steerSinceCursor"),
		FollowUpSince:   queryInt64Ptr(r, "followUpSinceCursor"),
	}

	initial, sub, err := s.hub.Subscribe(r.Context(), id, cursors)
	if err != nil {
		writeNotFound(w, "unknown session "+id)
		return
	}
	defer sub.Close()

	var deadline time.Time
	if secs := queryInt(r, "timeoutSeconds", 0); secs > 0 {
		deadline = time.Now().Add(time.Duration(secs) * time.Second)
	}

	sse, err := startStream(w)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeBackfillFrames(sse, initial)

	runStream(r, sse, sub, queryBool(r, "stopAfterIdle"), deadline)
}
