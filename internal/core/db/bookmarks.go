package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const selectDocument = `
	SELECT id, body, capture_status, capture_error, capture_attempted_at, captured_at
	FROM documents
`

// ------------------------------
// Document methods
// ------------------------------

// Insert stores doc under its normalized _id.
//
// It returns ErrMissingID when the document has no usable _id and
// ErrDuplicateID when the id is taken.
// Emits a DocumentInsertedEvent after successful insert.
func (s *SQLiteStore) Insert(ctx context.Context, doc Document) error {
	id, ok := NormalizeID(doc[FieldID])
	if !ok {
		return ErrMissingID
	}
	body := storedBody(doc, id)

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (id, body, created_at) VALUES (?, ?, ?)",
		id,
		string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	s.emit(DocumentInsertedEvent{Document: body})
	return nil
}

// Update merges fields into the stored body at id, replacing top-level keys.
// _id and capture are never overwritten.
// Emits a DocumentUpdatedEvent when a document matched.
func (s *SQLiteStore) Update(ctx context.Context, id string, fields Document) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT body FROM documents WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load document: %w", err)
	}

	body, err := decodeBody(raw)
	if err != nil {
		return false, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	for k, v := range fields {
		if k == FieldID || k == FieldCapture {
			continue
		}
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return false, fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET body = ? WHERE id = ?", string(data), id); err != nil {
		return false, fmt.Errorf("failed to update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit update: %w", err)
	}

	s.emit(DocumentUpdatedEvent{ID: id, Fields: fields})
	return true, nil
}

// FindAll returns every document in insertion order.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]Document, error) {
	return s.query(ctx, selectDocument+" ORDER BY rowid")
}

// Get returns the document stored at id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	docs, err := s.query(ctx, selectDocument+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return docs[0], nil
}

// Delete removes the document at id and reports whether one existed.
// Emits a DocumentDeletedEvent after a successful deletion.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	s.emit(DocumentDeletedEvent{ID: id})
	return true, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close rows", zap.Error(err))
		}
	}()

	out := []Document{}
	for rows.Next() {
		var (
			id, raw                                string
			status, errText, attemptedAt, captured sql.NullString
		)
		if err := rows.Scan(&id, &raw, &status, &errText, &attemptedAt, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeBody(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		doc[FieldID] = id
		doc[FieldCapture] = CaptureState{
			Status:      status.String,
			Error:       errText.String,
			AttemptedAt: attemptedAt.String,
			CapturedAt:  captured.String,
		}.Fields()
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return out, nil
}

// decodeBody keeps JSON numbers as json.Number so they round-trip unchanged.
func decodeBody(raw string) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
