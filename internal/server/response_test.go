package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello"})

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["message"] != "hello" {
		t.Errorf("expected hello, got %s", result["message"])
	}
}

func TestWriteAppError_MapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind       wuhuerr.Kind
		wantStatus int
	}{
		{wuhuerr.ConfigInvalid, http.StatusBadRequest},
		{wuhuerr.Tool, http.StatusOK},
		{wuhuerr.Cancelled, http.StatusOK},
		{wuhuerr.Provider, http.StatusBadGateway},
		{wuhuerr.Transport, http.StatusGatewayTimeout},
		{wuhuerr.ExecutorFault, http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		writeAppError(w, wuhuerr.New(c.kind, "boom"))
		if w.Code != c.wantStatus {
			t.Errorf("kind %s: expected status %d, got %d", c.kind, c.wantStatus, w.Code)
		}
		var body errorBody
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Kind != string(c.kind) {
			t.Errorf("expected kind %s, got %s", c.kind, body.Error.Kind)
		}
		if !strings.Contains(body.Error.Message, "boom") {
			t.Errorf("expected message to contain boom, got %s", body.Error.Message)
		}
	}
}

func TestWriteAppError_UntaggedError(t *testing.T) {
	w := httptest.NewRecorder()
	writeAppError(w, errPlain("disk on fire"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Kind != "internal" {
		t.Errorf("expected kind internal, got %s", body.Error.Kind)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestDecodeJSON_MalformedBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var v map[string]string
	if decodeJSON(w, r, &v) {
		t.Fatal("expected decode to fail")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDecodeJSONOptional_EmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	var v map[string]string
	if err := decodeJSONOptional(r, &v); err != nil {
		t.Fatalf("expected no error for empty body, got %v", err)
	}
}
