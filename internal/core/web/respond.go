package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
)

var errMalformedBody = errors.New("malformed JSON body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// fail maps err to a status code, logs it and writes the JSON error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", requestID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, fields...)
		writeError(w, status, msg)
		return
	}
	s.logger.Warn(msg, fields...)
	writeError(w, status, fmt.Sprintf("%s: %v", msg, err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedBody),
		errors.Is(err, db.ErrMissingID),
		errors.Is(err, archive.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeDocument reads a JSON object body, keeping numbers as json.Number so
// ids and client fields round-trip unchanged.
func decodeDocument(w http.ResponseWriter, r *http.Request) (db.Document, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var doc db.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: expected an object", errMalformedBody)
	}
	return doc, nil
}
