package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	root := t.TempDir()
	s, err := New(Config{
		ScreenshotDir: filepath.Join(root, "screenshots"),
		PDFDir:        filepath.Join(root, "pdfs"),
	})
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("CreatesDirectories", func(t *testing.T) {
		s := newTestStore(t)
		for _, kind := range []Kind{Screenshot, PDF} {
			info, err := os.Stat(s.Dir(kind))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
	})

	t.Run("MissingDirs", func(t *testing.T) {
		_, err := New(Config{PDFDir: t.TempDir()})
		assert.Error(t, err)
		_, err = New(Config{ScreenshotDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := New(Config{ScreenshotDir: file, PDFDir: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestKind(t *testing.T) {
	assert.Equal(t, ".png", Screenshot.Ext())
	assert.Equal(t, ".pdf", PDF.Ext())
	assert.Equal(t, "image/png", Screenshot.ContentType())
	assert.Equal(t, "application/pdf", PDF.ContentType())
	assert.Equal(t, "abc123.pdf", FileName(PDF, "abc123"))
}

func TestPath(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Path(Screenshot, "abc123.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(Screenshot), "abc123.png"), p)

	p, err = s.Path(PDF, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, s.Dir(PDF), filepath.Dir(p))

	_, err = s.Path(Screenshot, "..")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = s.Path(Screenshot, "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestWriteAndOpen(t *testing.T) {
	s := newTestStore(t)

	path, err := s.Write(Screenshot, "abc123", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(Screenshot), "abc123.png"), path)

	// overwrite replaces content
	_, err = s.Write(Screenshot, "abc123", []byte("newer"))
	require.NoError(t, err)

	f, info, err := s.Open(Screenshot, "abc123.png")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
	assert.Equal(t, int64(5), info.Size())

	_, _, err = s.Open(PDF, "abc123.pdf")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriteRejectsUnsafeID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Write(PDF, "../../etc/passwd", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestOpenRejectsDirectory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(PDF), "sub"), 0o750))
	_, _, err := s.Open(PDF, "sub")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)

	t.Run("BothPresent", func(t *testing.T) {
		_, err := s.Write(Screenshot, "abc123", []byte("a"))
		require.NoError(t, err)
		_, err = s.Write(PDF, "abc123", []byte("b"))
		require.NoError(t, err)

		require.NoError(t, s.Remove("abc123"))
		_, err = os.Stat(filepath.Join(s.Dir(Screenshot), "abc123.png"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
		_, err = os.Stat(filepath.Join(s.Dir(PDF), "abc123.pdf"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("MissingIsNotAnError", func(t *testing.T) {
		assert.NoError(t, s.Remove("never-captured"))
	})

	t.Run("UnsafeID", func(t *testing.T) {
		assert.ErrorIs(t, s.Remove("../x"), ErrInvalidID)
	})
}
