package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/archive"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/logging"
	"github.com/seckatie/linkshelf/internal/metrics"
)

// Snapshot is the captured output of rendering a single bookmark page.
type Snapshot struct {
	// FinalURL is the browser's final URL after redirects.
	FinalURL string
	// Title is the document title if available (may be empty).
	Title string
	// Screenshot is a full-page PNG.
	Screenshot []byte
	// PDF is the printed page.
	PDF []byte
}

// Capturer renders a link into archival artifacts.
type Capturer interface {
	Capture(ctx context.Context, link string) (Snapshot, error)
}

// CaptureOptions controls how a bookmark page is loaded and captured.
//
// A real Chrome/Chromium browser is driven over the DevTools protocol so that
// JS-heavy pages have a chance to fully render before the snapshot.
type CaptureOptions struct {
	// ChromePath optionally overrides the Chrome/Chromium executable path.
	// If empty, chromedp will try to find a browser on PATH / default locations.
	ChromePath string
	// Headless controls whether Chrome runs without a visible window.
	Headless bool
	// Timeout is the per-page deadline for navigation + rendering + capture.
	Timeout time.Duration
	// WaitSelector optionally waits for a CSS selector to become visible
	// before capturing. Useful for SPAs or sites that render late.
	WaitSelector string
	UserAgent    string
}

// ChromeCapturer captures pages with a fresh headless browser per link.
type ChromeCapturer struct {
	opts   CaptureOptions
	logger *zap.Logger
}

// NewChromeCapturer returns a Capturer backed by chromedp.
func NewChromeCapturer(opts CaptureOptions, logger *zap.Logger) *ChromeCapturer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCaptureTimeout
	}
	return &ChromeCapturer{opts: opts, logger: logging.OrNop(logger)}
}

// Capture navigates to link, waits for the network to go idle and <body> to
// be ready, then takes a full-page screenshot and prints the page to PDF.
//
// This does not attempt to bypass paywalls, CAPTCHAs or login walls.
func (c *ChromeCapturer) Capture(ctx context.Context, link string) (Snapshot, error) {
	if _, err := ValidateLink(link); err != nil {
		return Snapshot{}, err
	}
	c.logger.Debug("capturing page", zap.String("link", link))

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Flag("hide-scrollbars", true),
	)
	if c.opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(c.opts.ChromePath))
	}
	if c.opts.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, c.opts.Timeout)
	defer cancelRun()

	var (
		snap Snapshot
		html string
	)

	actions := []chromedp.Action{
		chromedp.ActionFunc(c.userAgentOverride),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return navigateAndWaitIdle(ctx, link)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if strings.TrimSpace(c.opts.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(c.opts.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(DefaultNetworkIdleDelay),
		chromedp.Location(&snap.FinalURL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&snap.Screenshot, DefaultScreenshotQuality),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			snap.PDF = buf
			return nil
		}),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return Snapshot{}, err
	}

	// Some pages leave document.title blank; fall back to parsing the HTML.
	if strings.TrimSpace(snap.Title) == "" && strings.TrimSpace(html) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			snap.Title, _ = ExtractTitle(doc)
		}
	}
	snap.Title = strings.Join(strings.Fields(snap.Title), " ")
	return snap, nil
}

func (c *ChromeCapturer) userAgentOverride(ctx context.Context) error {
	if c.opts.UserAgent == "" {
		return nil
	}
	if err := emulation.SetUserAgentOverride(c.opts.UserAgent).Do(ctx); err != nil {
		return fmt.Errorf("set user-agent: %w", err)
	}
	return nil
}

// navigateAndWaitIdle navigates and blocks until Chrome reports networkIdle.
func navigateAndWaitIdle(ctx context.Context, link string) error {
	if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
		return err
	}

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Navigate(link).Do(ctx); err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CaptureDeps bundles the collaborators a capture run needs.
type CaptureDeps struct {
	Store    db.Store
	Files    *archive.FileStore
	Capturer Capturer
	Logger   *zap.Logger
}

func (d CaptureDeps) logger() *zap.Logger {
	return logging.OrNop(d.Logger)
}

// CaptureJob identifies one document to capture.
type CaptureJob struct {
	ID   string
	Link string
}

// JobFor builds a CaptureJob from a stored document.
func JobFor(doc db.Document) CaptureJob {
	return CaptureJob{ID: doc.ID(), Link: doc.Link()}
}

// CaptureAndPersist captures a bookmark and stores the artifacts.
//
// On success both files are written and the document records
// status "ok" with attempt and capture times. On failure it still records
// status "error" with the message; no artifact is left behind.
func CaptureAndPersist(ctx context.Context, deps CaptureDeps, job CaptureJob) error {
	logger := deps.logger().With(zap.String("id", job.ID), zap.String("link", job.Link))
	attemptedAt := time.Now()

	fail := func(err error) error {
		metrics.ObserveCapture(db.CaptureStatusError)
		saveErr := deps.Store.SaveCaptureResult(ctx, job.ID, db.CaptureResult{
			AttemptedAt: attemptedAt,
			Status:      db.CaptureStatusError,
			Error:       err.Error(),
		})
		if saveErr != nil {
			return fmt.Errorf("capture failed (%w) and saving failure failed (%v)", err, saveErr)
		}
		return err
	}

	if err := archive.ValidateID(job.ID); err != nil {
		return fail(err)
	}

	snap, err := deps.Capturer.Capture(ctx, job.Link)
	if err != nil {
		return fail(err)
	}
	if _, err := deps.Files.Write(archive.Screenshot, job.ID, snap.Screenshot); err != nil {
		return fail(err)
	}
	if _, err := deps.Files.Write(archive.PDF, job.ID, snap.PDF); err != nil {
		if rmErr := deps.Files.Remove(job.ID); rmErr != nil {
			logger.Warn("failed to clean up partial capture", zap.Error(rmErr))
		}
		return fail(err)
	}

	capturedAt := time.Now()
	if err := deps.Store.SaveCaptureResult(ctx, job.ID, db.CaptureResult{
		AttemptedAt: attemptedAt,
		CapturedAt:  &capturedAt,
		Status:      db.CaptureStatusOK,
	}); err != nil {
		return err
	}
	metrics.ObserveCapture(db.CaptureStatusOK)

	backfillTitle(ctx, deps.Store, job.ID, snap.Title, logger)
	logger.Info("captured bookmark", zap.String("final_url", snap.FinalURL))
	return nil
}

// backfillTitle stores the browser title when the document has none.
func backfillTitle(ctx context.Context, store db.Store, id, title string, logger *zap.Logger) {
	if title == "" {
		return
	}
	doc, err := store.Get(ctx, id)
	if err != nil {
		logger.Warn("failed to load bookmark for title backfill", zap.Error(err))
		return
	}
	if doc.Title() != "" {
		return
	}
	if _, err := store.Update(ctx, id, db.Document{db.FieldTitle: title}); err != nil {
		logger.Warn("failed to backfill title", zap.Error(err))
	}
}

// RunOptions describes a synchronous capture run: either a single bookmark by
// ID, or a batch of bookmarks that were never captured.
type RunOptions struct {
	// ID, if set, captures only the bookmark with this ID, whatever its state.
	ID string
	// Limit bounds the batch size. If <= 0, every pending bookmark is captured.
	Limit int
}

// RunResult reports the outcome of a capture run.
type RunResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// RunCapture is the top-level synchronous capture workflow used by the CLI.
// It returns an error if any bookmark failed to capture.
func RunCapture(ctx context.Context, deps CaptureDeps, opts RunOptions) (RunResult, error) {
	logger := deps.logger()

	if opts.ID != "" {
		doc, err := deps.Store.Get(ctx, opts.ID)
		if err != nil {
			return RunResult{}, err
		}
		if err := CaptureAndPersist(ctx, deps, JobFor(doc)); err != nil {
			return RunResult{Attempted: 1, Failed: 1}, err
		}
		return RunResult{Attempted: 1, Succeeded: 1}, nil
	}

	docs, err := deps.Store.ListPendingCapture(ctx, opts.Limit)
	if err != nil {
		return RunResult{}, err
	}
	if len(docs) == 0 {
		logger.Info("no bookmarks to capture")
		return RunResult{}, nil
	}

	logger.Info("capturing bookmarks", zap.Int("count", len(docs)))
	var res RunResult
	for _, doc := range docs {
		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
		res.Attempted++
		if err := CaptureAndPersist(ctx, deps, JobFor(doc)); err != nil {
			res.Failed++
			logger.Warn("capture failed", zap.String("id", doc.ID()), zap.Error(err))
			continue
		}
		res.Succeeded++
	}

	if res.Failed > 0 {
		return res, fmt.Errorf("capture finished with %d failure(s)", res.Failed)
	}
	logger.Info("capture finished", zap.Int("succeeded", res.Succeeded))
	return res, nil
}
