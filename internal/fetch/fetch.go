// Package fetch defines the page fetcher capability shared by the colly,
// resty and headless implementations, and the paced client adapters use to
// reach a host.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/novelmirror/internal/ratelimit"
)

// DefaultUserAgent is sent when a site does not configure one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Response is one fetched document.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves a single URL while carrying session cookies.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
	// ResetSession discards every cookie collected so far.
	ResetSession()
}

// ErrStatus is matched by every StatusError.
var ErrStatus = errors.New("unexpected status")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap lets errors.Is match ErrStatus.
func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// CheckStatus maps a status code to nil, a retryable StatusError, or a
// permanent one for codes a retry cannot change.
func CheckStatus(url string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{URL: url, StatusCode: code}
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
		return ratelimit.Permanent(err)
	default:
		return err
	}
}
