package utils

import (
	"encoding/json"
	"errors"
	"net/http"
)

// JSON writes a JSON response with status and sensible headers.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": msg}.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]any{"error": msg})
}

const NDJSONContentType = "application/x-ndjson"

// NDJSON streams newline-delimited JSON values, flushing after each one.
type NDJSON struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	enc     *json.Encoder
	started bool
}

func NewNDJSON(w http.ResponseWriter) *NDJSON {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSON{w: w, rc: http.NewResponseController(w), enc: enc}
}

// Start commits a 200 status with the NDJSON media type. Later failures can
// only be reported in-band.
func (s *NDJSON) Start() error {
	if s.started {
		return nil
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", NDJSONContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	return s.flush()
}

// Write encodes v as one line and flushes it to the client.
func (s *NDJSON) Write(v any) error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	return s.flush()
}

func (s *NDJSON) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
