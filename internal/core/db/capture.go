package db

import (
	"context"
	"fmt"
)

// ListPendingCapture returns documents whose capture has never run or was cleared.
func (s *SQLiteStore) ListPendingCapture(ctx context.Context, limit int) ([]Document, error) {
	query := selectDocument + " WHERE capture_status IS NULL ORDER BY rowid"
	if limit > 0 {
		return s.query(ctx, query+" LIMIT ?", limit)
	}
	return s.query(ctx, query)
}

// SaveCaptureResult records the outcome of a capture attempt.
// Emits a CaptureSavedEvent after successful save.
func (s *SQLiteStore) SaveCaptureResult(ctx context.Context, id string, res CaptureResult) error {
	state := res.state()

	var capturedAt any
	if state.CapturedAt != "" {
		capturedAt = state.CapturedAt
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET
			capture_status = ?,
			capture_error = ?,
			capture_attempted_at = ?,
			captured_at = ?
		WHERE id = ?
	`,
		state.Status,
		state.Error,
		state.AttemptedAt,
		capturedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to save capture result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.emit(CaptureSavedEvent{ID: id, Status: state.Status})
	return nil
}

// ClearCapture resets capture state so the document is captured again.
// Emits a CaptureClearedEvent after success.
func (s *SQLiteStore) ClearCapture(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET
			capture_status = NULL,
			capture_error = NULL,
			capture_attempted_at = NULL,
			captured_at = NULL
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear capture state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.emit(CaptureClearedEvent{ID: id})
	return nil
}
