package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
)

// fakeCapturer records every link it is asked to capture.
type fakeCapturer struct {
	mu    sync.Mutex
	links []string
	snap  Snapshot
	err   error
	// release, when set, blocks each capture until it is closed.
	release chan struct{}
}

func (f *fakeCapturer) Capture(ctx context.Context, link string) (Snapshot, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link)
	return f.snap, f.err
}

func (f *fakeCapturer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.links...)
}

func okCapturer() *fakeCapturer {
	return &fakeCapturer{snap: Snapshot{
		FinalURL:   "https://example.com/",
		Title:      "Browser Title",
		Screenshot: []byte("png"),
		PDF:        []byte("pdf"),
	}}
}

func newTestDeps(t *testing.T, c Capturer) CaptureDeps {
	t.Helper()
	store, err := db.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	root := t.TempDir()
	files, err := archive.New(archive.Config{
		ScreenshotDir: filepath.Join(root, "screenshots"),
		PDFDir:        filepath.Join(root, "pdfs"),
	})
	require.NoError(t, err)

	return CaptureDeps{Store: store, Files: files, Capturer: c}
}

func insert(t *testing.T, store db.Store, doc db.Document) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), doc))
}

func artifactExists(deps CaptureDeps, kind archive.Kind, id string) bool {
	_, err := os.Stat(filepath.Join(deps.Files.Dir(kind), archive.FileName(kind, id)))
	return err == nil
}

func TestNewChromeCapturerDefaults(t *testing.T) {
	c := NewChromeCapturer(CaptureOptions{}, nil)
	assert.Equal(t, DefaultCaptureTimeout, c.opts.Timeout)
	assert.NotNil(t, c.logger)

	c = NewChromeCapturer(CaptureOptions{Timeout: time.Second, Headless: true}, nil)
	assert.Equal(t, time.Second, c.opts.Timeout)
	assert.True(t, c.opts.Headless)
}

func TestChromeCapturerRejectsInvalidLink(t *testing.T) {
	_, err := NewChromeCapturer(CaptureOptions{}, nil).Capture(context.Background(), "ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestCaptureAndPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("success writes artifacts and status", func(t *testing.T) {
		deps := newTestDeps(t, okCapturer())
		insert(t, deps.Store, db.Document{"_id": "abc123", "link": "https://example.com", "title": "Example"})

		require.NoError(t, CaptureAndPersist(ctx, deps, CaptureJob{ID: "abc123", Link: "https://example.com"}))

		assert.True(t, artifactExists(deps, archive.Screenshot, "abc123"))
		assert.True(t, artifactExists(deps, archive.PDF, "abc123"))

		doc, err := deps.Store.Get(ctx, "abc123")
		require.NoError(t, err)
		state := doc.Capture()
		assert.Equal(t, db.CaptureStatusOK, state.Status)
		assert.NotEmpty(t, state.AttemptedAt)
		assert.NotEmpty(t, state.CapturedAt)
		assert.Equal(t, "Example", doc.Title(), "existing title is kept")
	})

	t.Run("backfills missing title", func(t *testing.T) {
		deps := newTestDeps(t, okCapturer())
		insert(t, deps.Store, db.Document{"_id": "untitled", "link": "https://example.com"})

		require.NoError(t, CaptureAndPersist(ctx, deps, CaptureJob{ID: "untitled", Link: "https://example.com"}))

		doc, err := deps.Store.Get(ctx, "untitled")
		require.NoError(t, err)
		assert.Equal(t, "Browser Title", doc.Title())
	})

	t.Run("failure records error and leaves no artifacts", func(t *testing.T) {
		deps := newTestDeps(t, &fakeCapturer{err: errors.New("navigation failed")})
		insert(t, deps.Store, db.Document{"_id": "broken", "link": "https://example.invalid"})

		err := CaptureAndPersist(ctx, deps, CaptureJob{ID: "broken", Link: "https://example.invalid"})
		require.Error(t, err)

		assert.False(t, artifactExists(deps, archive.Screenshot, "broken"))
		assert.False(t, artifactExists(deps, archive.PDF, "broken"))

		doc, err := deps.Store.Get(ctx, "broken")
		require.NoError(t, err)
		state := doc.Capture()
		assert.Equal(t, db.CaptureStatusError, state.Status)
		assert.Equal(t, "navigation failed", state.Error)
		assert.Empty(t, state.CapturedAt)
	})

	t.Run("unsafe id is never captured", func(t *testing.T) {
		c := okCapturer()
		deps := newTestDeps(t, c)
		err := CaptureAndPersist(ctx, deps, CaptureJob{ID: "../escape", Link: "https://example.com"})
		assert.ErrorIs(t, err, archive.ErrInvalidID)
		assert.Empty(t, c.calls())
	})
}

func TestRunCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("single id", func(t *testing.T) {
		c := okCapturer()
		deps := newTestDeps(t, c)
		insert(t, deps.Store, db.Document{"_id": "one", "link": "https://one.example"})
		insert(t, deps.Store, db.Document{"_id": "two", "link": "https://two.example"})

		res, err := RunCapture(ctx, deps, RunOptions{ID: "two"})
		require.NoError(t, err)
		assert.Equal(t, RunResult{Attempted: 1, Succeeded: 1}, res)
		assert.Equal(t, []string{"https://two.example"}, c.calls())
	})

	t.Run("unknown id", func(t *testing.T) {
		deps := newTestDeps(t, okCapturer())
		_, err := RunCapture(ctx, deps, RunOptions{ID: "missing"})
		assert.ErrorIs(t, err, db.ErrNotFound)
	})

	t.Run("batch with limit", func(t *testing.T) {
		c := okCapturer()
		deps := newTestDeps(t, c)
		for _, id := range []string{"a", "b", "c"} {
			insert(t, deps.Store, db.Document{"_id": id, "link": "https://" + id + ".example"})
		}

		res, err := RunCapture(ctx, deps, RunOptions{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, RunResult{Attempted: 2, Succeeded: 2}, res)

		pending, err := deps.Store.ListPendingCapture(ctx, 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "c", pending[0].ID())
	})

	t.Run("nothing pending", func(t *testing.T) {
		deps := newTestDeps(t, okCapturer())
		res, err := RunCapture(ctx, deps, RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, RunResult{}, res)
	})

	t.Run("failures are counted", func(t *testing.T) {
		deps := newTestDeps(t, &fakeCapturer{err: errors.New("boom")})
		insert(t, deps.Store, db.Document{"_id": "x", "link": "https://x.example"})

		res, err := RunCapture(ctx, deps, RunOptions{})
		require.Error(t, err)
		assert.Equal(t, RunResult{Attempted: 1, Failed: 1}, res)
	})
}
