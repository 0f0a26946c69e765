package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/logging"
	"github.com/seckatie/linkshelf/internal/metrics"
)

var (
	// ErrInvalidURL reports a link that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNotHTML reports a response whose content type cannot carry a <title>.
	ErrNotHTML = errors.New("response is not html")
	// ErrNoTitle reports a page without a usable <title> element.
	ErrNoTitle = errors.New("page has no title")
)

// TitleOptions bounds a title lookup.
type TitleOptions struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
	UserAgent    string
}

// TitleResolver fetches a page and extracts its <title>.
type TitleResolver struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *zap.Logger
}

// NewTitleResolver builds a resolver. Zero options fall back to the defaults.
func NewTitleResolver(opts TitleOptions, logger *zap.Logger) *TitleResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTitleTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxTitleBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = UserAgent
	}
	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &TitleResolver{
		client:    client,
		maxBytes:  opts.MaxBytes,
		userAgent: opts.UserAgent,
		logger:    logging.OrNop(logger),
	}
}

// ValidateLink checks that link is an absolute http or https URL.
func ValidateLink(link string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Resolve returns the whitespace-collapsed text of the page's <title>.
func (r *TitleResolver) Resolve(ctx context.Context, link string) (string, error) {
	title, err := r.resolve(ctx, link)
	switch {
	case err == nil:
		metrics.ObserveTitle("ok")
	case errors.Is(err, ErrNoTitle):
		metrics.ObserveTitle("missing")
	default:
		metrics.ObserveTitle("error")
	}
	if err != nil {
		r.logger.Debug("title lookup failed", zap.String("link", link), zap.Error(err))
	}
	return title, err
}

func (r *TitleResolver) resolve(ctx context.Context, link string) (string, error) {
	u, err := ValidateLink(link)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if !isMarkup(resp.Header.Get("Content-Type")) {
		return "", fmt.Errorf("%w: %s", ErrNotHTML, resp.Header.Get("Content-Type"))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, r.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return ExtractTitle(doc)
}

// ExtractTitle prefers the <title> in <head> and falls back to the first one
// anywhere in the document.
func ExtractTitle(doc *goquery.Document) (string, error) {
	sel := doc.Find("head title").First()
	if sel.Length() == 0 {
		sel = doc.Find("title").First()
	}
	if sel.Length() == 0 {
		return "", ErrNoTitle
	}
	title := strings.Join(strings.Fields(sel.Text()), " ")
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// isMarkup accepts a missing content type and any text or XML markup type.
func isMarkup(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xhtml+xml" ||
		mediaType == "application/xml"
}
