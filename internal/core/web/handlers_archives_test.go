package web

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seckatie/linkshelf/internal/core/archive"
)

func TestServeArtifact(t *testing.T) {
	s, _, files := newTestServer(t, nil)
	_, err := files.Write(archive.Screenshot, "abc123", []byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, err)
	_, err = files.Write(archive.PDF, "abc123", []byte("%PDF-1.4 fake"))
	require.NoError(t, err)

	t.Run("screenshot", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/screenshots/abc123.png", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "\x89PNG\r\n\x1a\nfake", rec.Body.String())
	})

	t.Run("pdf", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/pdfs/abc123.pdf", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	})

	t.Run("missing file serves the 404 page", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/screenshots/missing.png", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Equal(t, string(s.notFoundPage), rec.Body.String())
	})

	t.Run("wrong directory", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/pdfs/abc123.png", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("traversal stays inside the directory", func(t *testing.T) {
		secret := filepath.Join(filepath.Dir(files.Dir(archive.PDF)), "secret.pdf")
		require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

		for _, target := range []string{
			"/pdfs/..%2Fsecret.pdf",
			"/pdfs/..%252Fsecret.pdf",
			"/pdfs/%2E%2E",
		} {
			rec := do(t, s, http.MethodGet, target, "")
			assert.Equal(t, http.StatusNotFound, rec.Code, target)
			assert.NotContains(t, rec.Body.String(), "secret", target)
		}
	})
}
