package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{name: "string", in: "abc123", want: "abc123", wantOK: true},
		{name: "empty string", in: "", wantOK: false},
		{name: "json number", in: json.Number("42"), want: "42", wantOK: true},
		{name: "float", in: float64(1700000000000), want: "1700000000000", wantOK: true},
		{name: "int64", in: int64(9), want: "9", wantOK: true},
		{name: "int32", in: int32(9), want: "9", wantOK: true},
		{name: "nil", in: nil, wantOK: false},
		{name: "object", in: map[string]any{"$oid": "x"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeID(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentAccessors(t *testing.T) {
	d := Document{
		FieldID:    json.Number("5"),
		FieldLink:  "https://example.com",
		FieldTitle: "Example",
	}
	assert.Equal(t, "5", d.ID())
	assert.Equal(t, "https://example.com", d.Link())
	assert.Equal(t, "Example", d.Title())
	assert.Equal(t, CaptureStatusPending, d.Capture().Status)

	d[FieldLink] = 12
	assert.Empty(t, d.Link())

	c := d.Clone()
	c[FieldTitle] = "changed"
	assert.Equal(t, "Example", d.Title())
}

func TestCaptureStateFields(t *testing.T) {
	assert.Equal(t, map[string]any{"status": CaptureStatusPending}, CaptureState{}.Fields())

	captured := time.Date(2026, 5, 1, 0, 0, 0, 0, time.FixedZone("x", 3600))
	res := CaptureResult{
		AttemptedAt: captured,
		CapturedAt:  &captured,
		Status:      CaptureStatusOK,
	}
	assert.Equal(t, map[string]any{
		"status":      CaptureStatusOK,
		"attemptedAt": "2026-04-30T23:00:00Z",
		"capturedAt":  "2026-04-30T23:00:00Z",
	}, res.state().Fields())

	assert.Equal(t, res.state(), captureStateFrom(res.state().Fields()))
}
