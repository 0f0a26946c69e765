package web

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/archive"
)

// serveArtifact serves a stored screenshot or PDF by file name. Any failure
// to open the file is answered with the 404 page.
func (s *Server) serveArtifact(kind archive.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}

		f, info, err := s.files.Open(kind, name)
		if err != nil {
			s.logger.Debug("artifact not served",
				zap.Stringer("kind", kind),
				zap.String("name", name),
				zap.Error(err),
			)
			s.notFound(w)
			return
		}
		defer f.Close()

		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}

func (s *Server) notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(s.notFoundPage)
}
