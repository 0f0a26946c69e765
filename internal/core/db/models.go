package db

import (
	"encoding/json"
	"strconv"
	"time"
)

// Well-known document fields. Everything else a client sends is stored as-is.
const (
	FieldID      = "_id"
	FieldLink    = "link"
	FieldName    = "name"
	FieldTitle   = "title"
	FieldTag     = "tag"
	FieldDate    = "date"
	FieldCapture = "capture"
)

// Capture status values stored on a document.
const (
	CaptureStatusPending = "pending"
	CaptureStatusOK      = "ok"
	CaptureStatusError   = "error"
)

// Document is a schemaless bookmark record keyed by its client supplied _id.
type Document map[string]any

// ID returns the normalized identifier, or "" when the document has none.
func (d Document) ID() string {
	id, _ := NormalizeID(d[FieldID])
	return id
}

// Link returns the bookmarked URL if it is a string.
func (d Document) Link() string {
	s, _ := d[FieldLink].(string)
	return s
}

// Title returns the stored page title if it is a string.
func (d Document) Title() string {
	s, _ := d[FieldTitle].(string)
	return s
}

// Capture returns the capture state view attached by the store on read.
func (d Document) Capture() CaptureState {
	return captureStateFrom(d[FieldCapture])
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// NormalizeID converts a decoded JSON identifier to its string form.
// Numbers keep their literal representation; anything else is rejected.
func NormalizeID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}

// storedBody strips the server managed fields and pins the normalized id.
func storedBody(doc Document, id string) Document {
	body := doc.Clone()
	body[FieldID] = id
	delete(body, FieldCapture)
	return body
}

// CaptureState is the read view of a document's capture progress.
type CaptureState struct {
	Status      string
	Error       string
	AttemptedAt string
	CapturedAt  string
}

// Fields renders the state as it appears under the "capture" key.
func (s CaptureState) Fields() map[string]any {
	status := s.Status
	if status == "" {
		status = CaptureStatusPending
	}
	m := map[string]any{"status": status}
	if s.Error != "" {
		m["error"] = s.Error
	}
	if s.AttemptedAt != "" {
		m["attemptedAt"] = s.AttemptedAt
	}
	if s.CapturedAt != "" {
		m["capturedAt"] = s.CapturedAt
	}
	return m
}

func captureStateFrom(v any) CaptureState {
	m, ok := v.(map[string]any)
	if !ok {
		return CaptureState{Status: CaptureStatusPending}
	}
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	state := CaptureState{
		Status:      str("status"),
		Error:       str("error"),
		AttemptedAt: str("attemptedAt"),
		CapturedAt:  str("capturedAt"),
	}
	if state.Status == "" {
		state.Status = CaptureStatusPending
	}
	return state
}

// CaptureResult is what a capture worker reports back for one document.
type CaptureResult struct {
	AttemptedAt time.Time
	// CapturedAt is nil when the capture failed.
	CapturedAt *time.Time
	Status     string
	Error      string
}

func (r CaptureResult) state() CaptureState {
	s := CaptureState{
		Status:      r.Status,
		Error:       r.Error,
		AttemptedAt: r.AttemptedAt.UTC().Format(time.RFC3339),
	}
	if r.CapturedAt != nil {
		s.CapturedAt = r.CapturedAt.UTC().Format(time.RFC3339)
	}
	return s
}
