package ocr

import (
	"context"
	"errors"
	"strings"
)

// retryableFragments is the transient-fault vocabulary matched against
// provider error text. Substring matching on error messages is fragile, so
// it lives only here, behind Retryable.
var retryableFragments = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"no such host",
	"dns",
	"temporary failure in name resolution",
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"resource exhausted",
	"unavailable",
	"unexpected eof",
}

// Retryable classifies an error as a transient fault the caller may safely
// resubmit. Anything outside the known vocabulary is non-retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}
