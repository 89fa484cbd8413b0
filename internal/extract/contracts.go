// Package extract defines the uniform contract every extraction backend
// implements, the failure taxonomy, and the backend registry.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/facturai/invoice-engine/internal/invoice"
)

// Kind classifies a backend failure.
type Kind string

const (
	KindUnavailable       Kind = "unavailable"
	KindAuthFailed        Kind = "auth_failed"
	KindTimeout           Kind = "timeout"
	KindMalformedDocument Kind = "malformed_document"
	KindUpstreamError     Kind = "upstream_error"
	KindParseFailure      Kind = "parse_failure"
)

// BackendError is the failure a backend returns from Extract.
type BackendError struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError wraps err with a backend name and failure kind.
func NewBackendError(backend string, kind Kind, err error) *BackendError {
	return &BackendError{Backend: backend, Kind: kind, Err: err}
}

// KindOf classifies an arbitrary extraction error. Context expiry maps
// to timeout so cancelled in-flight attempts stay visible in metrics.
func KindOf(err error) Kind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUpstreamError
}

// Document is the raw ingress: bytes plus a kind hint. Multipart
// decoding happens upstream; the engine never re-parses encodings.
type Document struct {
	Bytes    []byte
	Filename string
	Format   string // constants.PDF | constants.IMAGE
}

// Backend turns document bytes into a structured Invoice or fails with
// exactly one BackendError. Available must be cheap (no network I/O) so
// the orchestrator can skip unconfigured backends without charging
// latency; it is consulted lazily per request, not at startup.
type Backend interface {
	Name() string
	Available() bool
	Extract(ctx context.Context, doc Document) (*invoice.Invoice, error)
}
