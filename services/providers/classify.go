package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryDelay is used when a quota error carries no retry hint
const DefaultRetryDelay = 30 * time.Second

var (
	quotaMarkers    = []string{"429", "resource_exhausted", "quota", "rate limit", "rate_limit", "insufficient credits"}
	notFoundMarkers = []string{"404", "not_found", "not found", "does not exist"}
	authMarkers     = []string{"401", "403", "unauthorized", "permission", "forbidden", "api key", "invalid api", "invalid_api_key"}

	retryHintPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)please retry in ([\d.]+)s`),
		regexp.MustCompile(`(?i)retryDelay['"]?\s*:\s*['"]?(\d+)s`),
		regexp.MustCompile(`(?i)retry in ([\d.]+)\s*seconds?`),
	}
)

// ClassifyMessage maps raw provider error text onto an ErrorKind.
// Quota wins over the others because quota payloads often also mention the key.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, quotaMarkers):
		return KindQuota
	case containsAny(lower, notFoundMarkers):
		return KindNotFound
	case containsAny(lower, authMarkers):
		return KindAuth
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "connection refused"):
		return KindTransport
	}
	return KindOther
}

// ClassifyStatus maps an HTTP status code, falling back to the message text
func ClassifyStatus(statusCode int, msg string) ErrorKind {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return KindQuota
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		if HasRetryHint(msg) {
			return KindQuota
		}
		return KindTransport
	}
	return ClassifyMessage(msg)
}

// ClassifyTransport converts a failed round trip into a ProviderError.
// A timeout is transport unless its message carries a retry-after quota hint.
func ClassifyTransport(provider, model string, err error) *ProviderError {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}

	kind := KindOther
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		kind = KindTransport
		if HasRetryHint(err.Error()) {
			kind = KindQuota
		}
	default:
		kind = ClassifyMessage(err.Error())
	}

	pe := NewProviderError(provider, model, kind, "request failed", 0, err)
	if kind == KindQuota {
		pe.RetryAfter = RetryDelay(err.Error())
	}
	return pe
}

// HasRetryHint reports whether the message suggests a wait before retrying
func HasRetryHint(msg string) bool {
	for _, p := range retryHintPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// RetryDelay extracts the suggested retry delay from an error message
func RetryDelay(msg string) time.Duration {
	for _, p := range retryHintPatterns {
		m := p.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return time.Duration(secs * float64(time.Second))
	}
	return DefaultRetryDelay
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
