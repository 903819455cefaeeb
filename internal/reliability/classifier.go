package reliability

import (
	"context"
	"errors"
	"net"
)

// Outcome labels used for upstream call metrics.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeNetwork     = "network"
	OutcomeRateLimited = "rate_limited"
	OutcomeUpstream    = "upstream_error"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyHTTPStatus maps a non-2xx status to an outcome label.
func ClassifyHTTPStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeOK
	case code == 429:
		return OutcomeRateLimited
	case code >= 500:
		return OutcomeUpstream
	default:
		return OutcomeRejected
	}
}

// ClassifyError maps a transport-level error to an outcome label.
func ClassifyError(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return OutcomeCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return OutcomeTimeout
		}
		return OutcomeNetwork
	}
	return OutcomeError
}
