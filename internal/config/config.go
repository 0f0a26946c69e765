// Package config loads and validates linkshelf configuration via Viper.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

// EnvPrefix is prepended to every environment override, e.g. LINKSHELF_SERVER_PORT.
const EnvPrefix = "LINKSHELF"

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Title   TitleConfig   `mapstructure:"title" yaml:"title"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI   string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// ArchiveConfig locates the two artifact directories.
type ArchiveConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	PDFDir        string `mapstructure:"pdf_dir" yaml:"pdf_dir"`
}

// CaptureConfig governs the capture workers and the browser they drive.
type CaptureConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ChromePath   string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	Headful      bool          `mapstructure:"headful" yaml:"headful"`
	WaitSelector string        `mapstructure:"wait_selector" yaml:"wait_selector"`
}

// TitleConfig bounds the synchronous title lookup done on create.
type TitleConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBytes     int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

// New returns a Viper instance with defaults and environment overrides wired.
// Callers may bind flags to it before passing it to FromViper.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := New()
	return FromViper(v, path)
}

// FromViper reads the optional config file into v and decodes the result.
func FromViper(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		if err := readConfigFile(v, path); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// readConfigFile loads path into v. JSONC files (.jsonc, .hujson) may carry
// comments and trailing commas; they are standardized to JSON first.
func readConfigFile(v *viper.Viper, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".hujson":
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator.
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("read config: invalid JSONC: %w", err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(standardized)); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "linkshelf.db")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "linkshelf")
	v.SetDefault("store.collection", "bookmarks")
	v.SetDefault("archive.screenshot_dir", "data/screenshots")
	v.SetDefault("archive.pdf_dir", "data/pdfs")
	v.SetDefault("capture.enabled", true)
	v.SetDefault("capture.workers", 1)
	v.SetDefault("capture.queue_size", 0)
	v.SetDefault("capture.timeout", "35s")
	v.SetDefault("capture.chrome_path", "")
	v.SetDefault("capture.headful", false)
	v.SetDefault("capture.wait_selector", "")
	v.SetDefault("title.timeout", "10s")
	v.SetDefault("title.max_bytes", 5*1024*1024)
	v.SetDefault("title.max_redirects", 10)
	v.SetDefault("title.user_agent", "Mozilla/5.0 (compatible; linkshelf/1.0)")
	v.SetDefault("logging.development", true)
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverMongo:
		if strings.TrimSpace(c.Store.MongoURI) == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo driver"))
		}
		if c.Store.Database == "" || c.Store.Collection == "" {
			errs = append(errs, errors.New("store.database and store.collection are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Archive.ScreenshotDir) == "" || strings.TrimSpace(c.Archive.PDFDir) == "" {
		errs = append(errs, errors.New("archive.screenshot_dir and archive.pdf_dir are required"))
	}
	if c.Capture.Enabled && c.Capture.Workers <= 0 {
		errs = append(errs, fmt.Errorf("capture.workers must be positive, got %d", c.Capture.Workers))
	}
	if c.Capture.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("capture.queue_size must not be negative, got %d", c.Capture.QueueSize))
	}
	if c.Title.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("title.max_bytes must not be negative, got %d", c.Title.MaxBytes))
	}
	return errors.Join(errs...)
}
