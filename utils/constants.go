package utils

import (
	"time"
)

// Session time constants
const (
	// SessionTokenTTL is the default lifetime of a wizard session token (24 hours)
	SessionTokenTTL = 24 * time.Hour

	// SessionRecordTTL is how long an untouched durable wizard record survives (7 days)
	SessionRecordTTL = 7 * 24 * time.Hour

	// PersistDebounce coalesces rapid state changes per field group
	PersistDebounce = 100 * time.Millisecond

	// WizardIdleTimeout evicts live wizards that saw no request for this long
	WizardIdleTimeout = 30 * time.Minute
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Image constants
const (
	DefaultMaxImageWidth  = 800
	DefaultMaxImageHeight = 800
	DefaultImageQuality   = 0.7

	// DefaultImageMIME is assumed whenever a text-encoded image carries no MIME prefix
	DefaultImageMIME = "image/jpeg"
)
