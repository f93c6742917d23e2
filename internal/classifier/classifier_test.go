package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/linkscan/internal/classifier"
	"github.com/jonesrussell/linkscan/internal/domain"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		kind       domain.OutcomeKind
		reason     string
	}{
		{name: "200 working", statusCode: 200, kind: domain.OutcomeWorking},
		{name: "100 informational working", statusCode: 100, kind: domain.OutcomeWorking},
		{name: "301 redirect working", statusCode: 301, kind: domain.OutcomeWorking},
		{name: "399 working boundary", statusCode: 399, kind: domain.OutcomeWorking},
		{
			name:       "404 broken with reason phrase",
			statusCode: 404,
			kind:       domain.OutcomeBroken,
			reason:     "Not Found",
		},
		{
			name:       "500 broken with reason phrase",
			statusCode: 500,
			kind:       domain.OutcomeBroken,
			reason:     "Internal Server Error",
		},
		{
			name:       "unrecognized 4xx falls back to client error",
			statusCode: 499,
			kind:       domain.OutcomeBroken,
			reason:     classifier.ReasonClientError,
		},
		{
			name:       "unrecognized 5xx falls back to server error",
			statusCode: 599,
			kind:       domain.OutcomeBroken,
			reason:     classifier.ReasonServerError,
		},
		{
			name:       "status outside both ranges is unknown",
			statusCode: 999,
			kind:       domain.OutcomeBroken,
			reason:     "Error: Unknown HTTP Status Code '999'",
		},
		{
			name:       "status below informational is unknown",
			statusCode: 42,
			kind:       domain.OutcomeBroken,
			reason:     "Error: Unknown HTTP Status Code '42'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := classifier.ClassifyStatus(tt.statusCode)
			assert.Equal(t, tt.kind, outcome.Kind)
			assert.Equal(t, tt.statusCode, outcome.StatusCode)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, outcome.Reason)
			}
		})
	}
}

func TestClassifyErrorUnsupportedScheme(t *testing.T) {
	err := &url.Error{
		Op:  "Get",
		URL: "gopher://site.example",
		Err: errors.New(`unsupported protocol scheme "gopher"`),
	}

	outcome := classifier.ClassifyError(err)
	assert.Equal(t, domain.OutcomeInvalid, outcome.Kind)
	assert.Equal(t, classifier.ReasonInvalidLink, outcome.Reason)
}

func TestClassifyErrorConnectionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "dns failure",
			err: &url.Error{Op: "Get", URL: "https://no.example", Err: &net.DNSError{
				Err: "no such host", Name: "no.example", IsNotFound: true,
			}},
		},
		{
			name: "refused connection",
			err: &url.Error{Op: "Get", URL: "https://site.example", Err: &net.OpError{
				Op: "dial", Net: "tcp", Err: errors.New("connection refused"),
			}},
		},
		{
			name: "deadline exceeded",
			err:  fmt.Errorf("Get \"https://site.example\": %w", context.DeadlineExceeded),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := classifier.ClassifyError(tt.err)
			assert.Equal(t, domain.OutcomeBroken, outcome.Kind)
			assert.Equal(t, classifier.ReasonConnectionError, outcome.Reason)
		})
	}
}

func TestClassifyErrorOtherFailureKeepsCategory(t *testing.T) {
	err := fmt.Errorf("read response body: %w", errors.New("unexpected EOF"))

	outcome := classifier.ClassifyError(err)
	assert.Equal(t, domain.OutcomeBroken, outcome.Kind)
	assert.Contains(t, outcome.Reason, "unexpected EOF")
}

func TestClassifyStatusDeterminism(t *testing.T) {
	first := classifier.ClassifyStatus(404)
	second := classifier.ClassifyStatus(404)
	assert.Equal(t, first, second)
}
