package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkFault means no response was received at all: DNS failure, refused
// connection, timeout, or a body cut off mid-read.
type NetworkFault struct {
	Op  string
	Err error
}

func (e *NetworkFault) Error() string {
	return fmt.Sprintf("network fault during %s: %v", e.Op, e.Err)
}

func (e *NetworkFault) Unwrap() error {
	return e.Err
}

// HTTPFault means the server answered with a non-2xx status.
type HTTPFault struct {
	Op     string
	Status int
	// Body holds the start of the response body, for logs.
	Body string
}

func (e *HTTPFault) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server responded %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: server responded %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
}

// IsTransient reports whether the server declared a temporary overload.
func (e *HTTPFault) IsTransient() bool {
	return e.Status == http.StatusServiceUnavailable
}

// IsAuth reports whether the server refused the caller's credentials.
func (e *HTTPFault) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// ParseFault means the response body held no usable structured payload.
type ParseFault struct {
	Op  string
	Err error
	// Snippet holds the start of the body that failed to parse.
	Snippet string
}

func (e *ParseFault) Error() string {
	return fmt.Sprintf("parse fault during %s: %v", e.Op, e.Err)
}

func (e *ParseFault) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an HTTP 503 from the server.
func IsTransient(err error) bool {
	var hf *HTTPFault
	return errors.As(err, &hf) && hf.IsTransient()
}

// IsAuth reports whether err is an HTTP 401 or 403 from the server, or a
// locally detected expired token.
func IsAuth(err error) bool {
	var hf *HTTPFault
	return errors.As(err, &hf) && hf.IsAuth()
}

// IsNetwork reports whether err is a NetworkFault.
func IsNetwork(err error) bool {
	var nf *NetworkFault
	return errors.As(err, &nf)
}

// IsParse reports whether err is a ParseFault.
func IsParse(err error) bool {
	var pf *ParseFault
	return errors.As(err, &pf)
}

// snippet trims a body for inclusion in an error message.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
