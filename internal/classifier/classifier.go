// Package classifier maps the result of one HTTP link check onto a terminal
// outcome: working, broken, or invalid, with a human-readable reason.
package classifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jonesrussell/linkscan/internal/domain"
)

// Reason strings recorded on checked links.
const (
	ReasonInvalidLink     = "Link was invalid"
	ReasonConnectionError = "There was an error connecting to this site"
	ReasonClientError     = "Client error"
	ReasonServerError     = "Server Error"
)

// HTTP status boundaries for outcome classification. Informational,
// success, and redirect responses all count as working; the engine does not
// distinguish 2xx from 3xx.
const (
	statusAcceptedLow  = 100
	statusAcceptedHigh = 400
	statusClientHigh   = 500
	statusServerHigh   = 600
)

// ClassifyError turns a transport error into an outcome. Evaluated before any
// status-based classification: a non-nil error means no usable response was
// received.
func ClassifyError(err error) domain.Outcome {
	if isUnsupportedScheme(err) {
		return domain.Invalid(ReasonInvalidLink)
	}

	if isConnectionError(err) {
		return domain.Broken(0, ReasonConnectionError)
	}

	return domain.Broken(0, fmt.Sprintf("%T: %s", unwrapped(err), err.Error()))
}

// ClassifyStatus turns a received HTTP status code into an outcome.
func ClassifyStatus(statusCode int) domain.Outcome {
	if statusCode >= statusAcceptedLow && statusCode < statusAcceptedHigh {
		return domain.Working(statusCode)
	}

	if phrase := http.StatusText(statusCode); phrase != "" {
		return domain.Broken(statusCode, phrase)
	}

	switch {
	case statusCode >= statusAcceptedHigh && statusCode < statusClientHigh:
		return domain.Broken(statusCode, ReasonClientError)
	case statusCode >= statusClientHigh && statusCode < statusServerHigh:
		return domain.Broken(statusCode, ReasonServerError)
	default:
		return domain.Broken(statusCode, fmt.Sprintf("Error: Unknown HTTP Status Code '%d'", statusCode))
	}
}

// isUnsupportedScheme reports whether the fetch failed because the stored
// URL has a scheme the HTTP client cannot request.
func isUnsupportedScheme(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unsupported protocol scheme") ||
		strings.Contains(msg, "missing protocol scheme")
}

// isConnectionError reports whether the fetch failed before a response was
// received: DNS failure, refused connection, TLS failure, or timeout.
func isConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var tlsRecordErr tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return true
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}

	return false
}

// unwrapped returns the innermost error for reason text, so the recorded
// failure category names the root cause rather than a wrapper.
func unwrapped(err error) error {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
}
