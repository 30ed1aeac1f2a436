package validator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidEvent  = errors.New("invalid calendar event")
	ErrInvalidURL    = errors.New("invalid URL format")
	ErrHTTPSRequired = errors.New("HTTPS is required")
)

// ValidateEventFields checks the content fields every calendar event
// row must carry. Normalization happens at the repository boundary so
// the sync engine only ever sees well-formed rows.
func ValidateEventFields(title string, startsAt, endsAt time.Time) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if startsAt.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidEvent)
	}
	if endsAt.IsZero() {
		return fmt.Errorf("%w: end time is required", ErrInvalidEvent)
	}
	if endsAt.Before(startsAt) {
		return fmt.Errorf("%w: end time precedes start time", ErrInvalidEvent)
	}
	return nil
}

// ValidateURL checks that a URL is well-formed. In production mode
// HTTPS is required; plain HTTP is allowed in development.
func ValidateURL(raw string, requireHTTPS bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if requireHTTPS && parsed.Scheme != "https" {
		return ErrHTTPSRequired
	}

	return nil
}
