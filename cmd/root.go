/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/config"
	"github.com/seckatie/linkshelf/internal/core"
	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/web"
	"github.com/seckatie/linkshelf/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkshelf",
	Short: "Personal bookmark manager with archived screenshots and PDFs",
	Long: `linkshelf serves a JSON API for saving bookmarks. Every saved link gets
its page title resolved on the way in and is captured in the background by a
headless Chrome into a PNG screenshot and a PDF, served back under
/screenshots and /pdfs.

Configuration comes from flags, LINKSHELF_* environment variables and an
optional config file, in that order of precedence.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (yaml, json, jsonc or toml)")
	rootCmd.PersistentFlags().StringP("db", "d", "linkshelf.db", "Path to the SQLite database file")
	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")

	// Capture workers flags
	rootCmd.Flags().IntP("capture-workers", "w", 1, "Number of capture workers to run")
}

// flagKeys maps config keys to the flag that overrides them.
var flagKeys = map[string]string{
	"server.host":           "host",
	"server.port":           "port",
	"store.sqlite_path":     "db",
	"capture.workers":       "capture-workers",
	"capture.timeout":       "timeout",
	"capture.wait_selector": "wait-selector",
	"capture.chrome_path":   "chrome-path",
	"capture.headful":       "headful",
}

// bindFlags binds every flag of cmd that overrides a config key. Flags only
// win over env and file values when they were set explicitly.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// loadConfig resolves the configuration for cmd from flags, env and file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to read --config: %w", err)
	}
	return config.FromViper(v, path)
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  db.Store
	files  *archive.FileStore
}

func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	store, err := db.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	files, err := archive.New(archive.Config{
		ScreenshotDir: cfg.Archive.ScreenshotDir,
		PDFDir:        cfg.Archive.PDFDir,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to prepare archive: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: store, files: files}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) captureDeps() core.CaptureDeps {
	return core.CaptureDeps{
		Store:    a.store,
		Files:    a.files,
		Capturer: core.NewChromeCapturer(captureOptions(a.cfg.Capture, a.cfg.Title.UserAgent), a.logger),
		Logger:   a.logger,
	}
}

func captureOptions(cfg config.CaptureConfig, userAgent string) core.CaptureOptions {
	chromePath := cfg.ChromePath
	if chromePath == "" && runtime.GOOS == "darwin" {
		// Best-effort default for macOS.
		chromePath = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	}
	return core.CaptureOptions{
		ChromePath:   chromePath,
		Headless:     !cfg.Headful,
		Timeout:      cfg.Timeout,
		WaitSelector: cfg.WaitSelector,
		UserAgent:    userAgent,
	}
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	var queue *core.CaptureQueue
	if a.cfg.Capture.Enabled {
		queue = core.NewCaptureQueue(a.captureDeps(), core.QueueOptions{
			Workers: a.cfg.Capture.Workers,
			Size:    a.cfg.Capture.QueueSize,
		})
		core.WireCaptureQueue(a.store, queue)
		queue.Start(context.Background())

		// Pick up bookmarks saved while the service was down.
		go func() {
			if _, err := core.QueuePending(ctx, a.store, queue); err != nil && ctx.Err() == nil {
				a.logger.Warn("failed to queue pending captures", zap.Error(err))
			}
		}()
	} else {
		a.logger.Info("capture disabled, bookmarks stay pending until `linkshelf capture` runs")
	}

	server, err := web.NewServer(web.Options{
		Store: a.store,
		Files: a.files,
		Titles: core.NewTitleResolver(core.TitleOptions{
			Timeout:      a.cfg.Title.Timeout,
			MaxBytes:     a.cfg.Title.MaxBytes,
			MaxRedirects: a.cfg.Title.MaxRedirects,
			UserAgent:    a.cfg.Title.UserAgent,
		}, a.logger),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	serveErr := server.ListenAndServe(ctx, a.cfg.Server.Addr(), a.cfg.Server.ShutdownTimeout)

	if queue != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			a.logger.Warn("capture queue did not drain", zap.Error(err))
		}
	}
	return serveErr
}
