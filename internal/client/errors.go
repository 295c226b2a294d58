package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode  int
	Message     string
	Suggestions []string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NetworkError means the API could not be reached at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RetryError is the terminal error of GenerateWithRetry.
type RetryError struct {
	Attempts  int
	Retryable bool
	Guidance  string
	Err       error
}

func (e *RetryError) Error() string {
	msg := e.Err.Error()
	if e.Retryable {
		msg = fmt.Sprintf("generation failed after %d retries: %s", MaxRetryCount, msg)
	}
	if e.Guidance != "" {
		msg += " (" + e.Guidance + ")"
	}
	return msg
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

const networkGuidance = "the API server is unreachable; check that it is running and that the base URL is correct"

var clientErrorPatterns = []string{
	"validation",
	"invalid",
	"bad request",
	"unsupported",
	"too large",
	"unauthorized",
	"forbidden",
}

var networkErrorPatterns = []string{
	"failed to fetch",
	"networkerror",
	"network error",
	"connection refused",
	"no such host",
	"connection reset",
}

// classify reports whether err is worth retrying and, for network failures,
// what the caller should check.
func classify(err error) (retryable bool, guidance string) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// 501: the server cannot generate at all until it is reconfigured.
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 || httpErr.StatusCode == http.StatusNotImplemented {
			return false, ""
		}
		return true, ""
	}

	var netErr *NetworkError
	var opErr *net.OpError
	if errors.As(err, &netErr) || errors.As(err, &opErr) {
		return false, networkGuidance
	}

	msg := strings.ToLower(err.Error())
	for _, p := range networkErrorPatterns {
		if strings.Contains(msg, p) {
			return false, networkGuidance
		}
	}
	for _, p := range clientErrorPatterns {
		if strings.Contains(msg, p) {
			return false, ""
		}
	}
	return true, ""
}
