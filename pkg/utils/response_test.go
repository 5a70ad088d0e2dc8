package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]any{"ok": true})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := rr.Body.String(); got != "{\"ok\":true}\n" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestNDJSON_WritesOneValuePerLine(t *testing.T) {
	rr := httptest.NewRecorder()
	s := NewNDJSON(rr)

	if err := s.Write(map[string]string{"a": "<b>"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != NDJSONContentType {
		t.Errorf("unexpected content type %q", got)
	}
	want := "{\"a\":\"<b>\"}\n{\"n\":1}\n"
	if got := rr.Body.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if !rr.Flushed {
		t.Errorf("expected the recorder to be flushed")
	}
}

func TestNDJSON_StartIsIdempotent(t *testing.T) {
	rr := httptest.NewRecorder()
	s := NewNDJSON(rr)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
}
