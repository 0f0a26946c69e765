package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCaptureResult(t *testing.T) {
	ctx := context.Background()
	attempted := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Insert(ctx, Document{FieldID: "ok"}))

		captured := attempted.Add(time.Second)
		require.NoError(t, s.SaveCaptureResult(ctx, "ok", CaptureResult{
			AttemptedAt: attempted,
			CapturedAt:  &captured,
			Status:      CaptureStatusOK,
		}))

		doc, err := s.Get(ctx, "ok")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"status":      CaptureStatusOK,
			"attemptedAt": "2026-01-02T03:04:05Z",
			"capturedAt":  "2026-01-02T03:04:06Z",
		}, doc[FieldCapture])
	})

	t.Run("failure", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Insert(ctx, Document{FieldID: "bad"}))

		require.NoError(t, s.SaveCaptureResult(ctx, "bad", CaptureResult{
			AttemptedAt: attempted,
			Status:      CaptureStatusError,
			Error:       "navigation failed",
		}))

		doc, err := s.Get(ctx, "bad")
		require.NoError(t, err)
		state := doc.Capture()
		assert.Equal(t, CaptureStatusError, state.Status)
		assert.Equal(t, "navigation failed", state.Error)
		assert.Empty(t, state.CapturedAt)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newTestStore(t)
		err := s.SaveCaptureResult(ctx, "ghost", CaptureResult{Status: CaptureStatusOK})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListPendingCapture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"p1", "done", "p2", "p3"} {
		require.NoError(t, s.Insert(ctx, Document{FieldID: id}))
	}
	require.NoError(t, s.SaveCaptureResult(ctx, "done", CaptureResult{Status: CaptureStatusOK}))

	pending, err := s.ListPendingCapture(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "p1", pending[0].ID())
	assert.Equal(t, "p2", pending[1].ID())
	assert.Equal(t, "p3", pending[2].ID())

	limited, err := s.ListPendingCapture(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestClearCapture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Insert(ctx, Document{FieldID: "again"}))
	require.NoError(t, s.SaveCaptureResult(ctx, "again", CaptureResult{Status: CaptureStatusError, Error: "boom"}))

	require.NoError(t, s.ClearCapture(ctx, "again"))

	doc, err := s.Get(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": CaptureStatusPending}, doc[FieldCapture])

	pending, err := s.ListPendingCapture(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	assert.ErrorIs(t, s.ClearCapture(ctx, "ghost"), ErrNotFound)
}
