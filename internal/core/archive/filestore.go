// Package archive stores the screenshot and PDF artifacts produced for each
// bookmark on the local filesystem.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// ErrInvalidName is returned when a requested file name sanitizes to nothing
// or resolves outside its directory.
var ErrInvalidName = errors.New("invalid file name")

// Kind selects one of the two artifact directories.
type Kind int

const (
	Screenshot Kind = iota
	PDF
)

// Ext is the file extension, including the dot, used for the kind.
func (k Kind) Ext() string {
	switch k {
	case Screenshot:
		return ".png"
	case PDF:
		return ".pdf"
	default:
		return ""
	}
}

// ContentType is the MIME type served for the kind.
func (k Kind) ContentType() string {
	switch k {
	case Screenshot:
		return "image/png"
	case PDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func (k Kind) String() string {
	switch k {
	case Screenshot:
		return "screenshot"
	case PDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// Config captures the artifact directories.
type Config struct {
	ScreenshotDir string `mapstructure:"screenshot_dir"`
	PDFDir        string `mapstructure:"pdf_dir"`
}

// FileStore reads and writes artifacts under two base directories.
type FileStore struct {
	screenshotDir string
	pdfDir        string
}

// New prepares both directories, creating them when missing, and checks that
// they are writable.
func New(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.ScreenshotDir) == "" {
		return nil, fmt.Errorf("screenshot directory is required")
	}
	if strings.TrimSpace(cfg.PDFDir) == "" {
		return nil, fmt.Errorf("pdf directory is required")
	}
	for _, dir := range []string{cfg.ScreenshotDir, cfg.PDFDir} {
		if err := prepareDir(dir); err != nil {
			return nil, err
		}
	}
	return &FileStore{
		screenshotDir: filepath.Clean(cfg.ScreenshotDir),
		pdfDir:        filepath.Clean(cfg.PDFDir),
	}, nil
}

func prepareDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
	case err != nil:
		return fmt.Errorf("stat directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("clean up probe in %s: %w", dir, err)
	}
	return nil
}

// Dir returns the base directory for kind.
func (s *FileStore) Dir(kind Kind) string {
	if kind == PDF {
		return s.pdfDir
	}
	return s.screenshotDir
}

// FileName is the artifact name stored for a bookmark id.
func FileName(kind Kind, id string) string {
	return id + kind.Ext()
}

// Path sanitizes name and joins it to the kind's directory. The result is
// guaranteed to stay inside that directory.
func (s *FileStore) Path(kind Kind, name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	base := s.Dir(kind)
	full := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalidName, name, base)
	}
	return full, nil
}

// Write stores data as <id><ext> in the kind's directory, replacing any
// previous artifact atomically.
func (s *FileStore) Write(kind Kind, id string, data []byte) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path, err := s.Path(kind, FileName(kind, id))
	if err != nil {
		return "", err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write %s: %w", kind, err)
	}
	return path, nil
}

// Open opens a stored artifact by its requested file name. Missing files
// and directories report fs.ErrNotExist.
func (s *FileStore) Open(kind Kind, name string) (*os.File, fs.FileInfo, error) {
	path, err := s.Path(kind, name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path is sanitized and contained.
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return f, info, nil
}

// Remove deletes both artifacts of id. Files that do not exist are not an
// error; every other failure is returned joined.
func (s *FileStore) Remove(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	var errs []error
	for _, kind := range []Kind{Screenshot, PDF} {
		path, err := s.Path(kind, FileName(kind, id))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
