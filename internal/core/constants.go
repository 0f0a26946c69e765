package core

import "time"

// Timeout defaults for capture and title lookups
const (
	DefaultCaptureTimeout   = 35 * time.Second
	DefaultTitleTimeout     = 10 * time.Second
	DefaultNetworkIdleDelay = 500 * time.Millisecond
)

// Resource limits
const (
	DefaultMaxTitleBytes     = 5 * 1024 * 1024 // 5MB
	DefaultMaxRedirects      = 10
	DefaultScreenshotQuality = 100
)

// HTTP client configuration
const (
	UserAgent = "Mozilla/5.0 (compatible; linkshelf/1.0)"
)
