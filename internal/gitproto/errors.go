package gitproto

import "fmt"

// TransportError wraps a lower-level network error (timeout, connection
// reset, DNS failure) encountered while talking to the upstream. It is
// always safe to retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gitproto: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is returned when the upstream responds with a non-2xx
// HTTP status.
type UpstreamError struct {
	Status     int
	BodyPrefix string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gitproto: upstream returned %d: %s", e.Status, e.BodyPrefix)
}

// Retryable reports whether the status code indicates a transient
// server-side failure (5xx) as opposed to a permanent client error.
func (e *UpstreamError) Retryable() bool {
	return e.Status >= 500
}

// AuthError is returned when the upstream rejects the configured
// credentials (HTTP 401/403). It is never retryable.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gitproto: authentication failed (HTTP %d)", e.Status)
}

// ProtocolMalformed is returned when a pkt-line stream, capability
// advertisement, or sideband section does not conform to protocol v2.
type ProtocolMalformed struct {
	Reason string
}

func (e *ProtocolMalformed) Error() string {
	return fmt.Sprintf("gitproto: malformed protocol v2 response: %s", e.Reason)
}

// PackfileCorrupt is returned when a packfile section of a fetch
// response fails to decode or checksum.
type PackfileCorrupt struct {
	Err error
}

func (e *PackfileCorrupt) Error() string {
	return fmt.Sprintf("gitproto: corrupt packfile: %v", e.Err)
}

func (e *PackfileCorrupt) Unwrap() error {
	return e.Err
}
