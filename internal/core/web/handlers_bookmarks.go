package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
)

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.FindAll(r.Context())
	if err != nil {
		s.fail(w, r, "failed to list bookmarks", err)
		return
	}
	if docs == nil {
		docs = []db.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) getBookmark(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "failed to get bookmark", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// createBookmark resolves the page title, stores the bookmark and answers
// before any capture runs. A failed title lookup never blocks the insert.
func (s *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		s.fail(w, r, "invalid bookmark", err)
		return
	}

	id := uuid.NewString()
	if raw, ok := doc[db.FieldID]; ok {
		if id, ok = db.NormalizeID(raw); !ok {
			s.fail(w, r, "invalid bookmark", fmt.Errorf("%w: unusable _id", db.ErrMissingID))
			return
		}
	}
	if err := archive.ValidateID(id); err != nil {
		s.fail(w, r, "invalid bookmark", err)
		return
	}
	doc[db.FieldID] = id

	if link := doc.Link(); link != "" && s.titles != nil {
		title, err := s.titles.Resolve(r.Context(), link)
		if err != nil {
			s.logger.Warn("title lookup failed, storing bookmark without it",
				zap.String("id", id),
				zap.String("link", link),
				zap.Error(err),
			)
		} else {
			doc[db.FieldTitle] = title
		}
	}

	if err := s.store.Insert(r.Context(), doc); err != nil {
		s.fail(w, r, "failed to store bookmark", err)
		return
	}
	writeText(w, http.StatusOK, "DONE!")
}

// updateBookmark merges the body's fields into the bookmark at _id. A miss is
// still reported as updated.
func (s *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		s.fail(w, r, "invalid update", err)
		return
	}
	id, ok := db.NormalizeID(doc[db.FieldID])
	if !ok {
		s.fail(w, r, "invalid update", db.ErrMissingID)
		return
	}

	fields := doc.Clone()
	delete(fields, db.FieldID)
	matched, err := s.store.Update(r.Context(), id, fields)
	if err != nil {
		s.fail(w, r, "failed to update bookmark", err)
		return
	}
	if !matched {
		s.logger.Debug("update matched no bookmark", zap.String("id", id))
	}
	writeText(w, http.StatusOK, "Updated!")
}

// deleteBookmark removes the bookmark named by the body's id, then both of
// its artifacts. Artifact removal failures are logged only.
func (s *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	body, err := decodeDocument(w, r)
	if err != nil {
		s.fail(w, r, "invalid delete", err)
		return
	}
	id, ok := db.NormalizeID(body["id"])
	if !ok {
		s.fail(w, r, "invalid delete", db.ErrMissingID)
		return
	}
	if err := archive.ValidateID(id); err != nil {
		s.fail(w, r, "invalid delete", err)
		return
	}

	if _, err := s.store.Delete(r.Context(), id); err != nil {
		s.fail(w, r, "failed to delete bookmark", err)
		return
	}
	if err := s.files.Remove(id); err != nil {
		s.logger.Warn("failed to remove artifacts", zap.String("id", id), zap.Error(err))
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Bookmark with _id:%s deleted.", id))
}

// recaptureBookmark clears the capture state; the capture queue picks the
// bookmark up again from the resulting event.
func (s *Server) recaptureBookmark(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.ClearCapture(r.Context(), id); err != nil {
		s.fail(w, r, "failed to queue capture", err)
		return
	}
	writeText(w, http.StatusAccepted, "Capture queued!")
}
