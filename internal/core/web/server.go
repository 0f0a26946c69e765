// Package web serves the linkshelf JSON API and the archived artifacts.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/logging"
	"github.com/seckatie/linkshelf/internal/metrics"
)

//go:embed static/404.html
var staticFS embed.FS

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// TitleResolver looks up the title of a page.
type TitleResolver interface {
	Resolve(ctx context.Context, link string) (string, error)
}

// Options wires the server's collaborators.
type Options struct {
	Store db.Store
	Files *archive.FileStore
	// Titles is optional; without it bookmarks keep whatever title the client sent.
	Titles         TitleResolver
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Server routes HTTP requests to the store and the archive.
type Server struct {
	router       chi.Router
	store        db.Store
	files        *archive.FileStore
	titles       TitleResolver
	logger       *zap.Logger
	notFoundPage []byte
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if opts.Files == nil {
		return nil, errors.New("web: archive is required")
	}
	logger := logging.OrNop(opts.Logger)
	notFoundPage, err := staticFS.ReadFile("static/404.html")
	if err != nil {
		return nil, fmt.Errorf("web: load 404 page: %w", err)
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	metrics.Init()

	s := &Server{
		store:        opts.Store,
		files:        opts.Files,
		titles:       opts.Titles,
		logger:       logger,
		notFoundPage: notFoundPage,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.listBookmarks)
		r.Post("/", s.createBookmark)
		r.Put("/", s.updateBookmark)
		r.Delete("/", s.deleteBookmark)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getBookmark)
			r.Post("/capture", s.recaptureBookmark)
		})
	})

	r.Get("/screenshots/{name}", s.serveArtifact(archive.Screenshot))
	r.Get("/pdfs/{name}", s.serveArtifact(archive.PDF))

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, waiting at most shutdownTimeout for open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
