// Copyright 2024-2026 Aiku AI

package slack

import (
	"fmt"
	"net/http"
	"time"
)

// TransportError is an HTTP-layer failure from the Slack API: any response
// status outside 2xx other than 429 (which carries a rate-limit envelope and
// is parsed normally). It is fatal to the individual call and never retried
// at this layer.
type TransportError struct {
	Method     string
	StatusCode int
	Body       string
	Header     http.Header
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("slack API call to %s failed with status code %d: %q (headers: %v)",
		e.Method, e.StatusCode, e.Body, e.Header)
}

// RemoteError is an application-level rejection: the response envelope
// carried an error field. RetryAfter is the server-advised delay for
// "ratelimited" errors, zero otherwise.
type RemoteError struct {
	Method     string
	Code       string
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("slack API call to %s returned an error: %s", e.Method, e.Code)
}

// PayloadTooLargeError reports an outbound frame that exceeds the wire
// protocol's hard size limit. The payload is never transmitted, and never
// truncated.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("cannot send payload of %d bytes, limit is %d", e.Size, e.Limit)
}
