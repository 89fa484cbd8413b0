// Package orchestrator runs the extraction pipeline: pick candidate
// backends, try them in priority order, record every attempt, validate
// the first success.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/invoice"
	"github.com/facturai/invoice-engine/internal/metrics"
)

// ErrUnknownBackend means the caller asked for a backend name that was
// never registered. No extraction attempt is made.
var ErrUnknownBackend = errors.New("unknown extraction backend")

// ErrNoBackendAvailable means no candidate backend is currently usable.
// No extraction attempt is made.
var ErrNoBackendAvailable = errors.New("no extraction backend available")

// AllFailedError reports that every candidate backend was tried and
// failed. Attempts holds the per-backend outcomes in the order tried.
type AllFailedError struct {
	Attempts []metrics.Attempt
}

func (e *AllFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Backend + ": " + a.ErrorKind
	}
	return fmt.Sprintf("all extraction backends failed (%s)", strings.Join(parts, ", "))
}

// Result is a successful pipeline run: the extracted invoice, its
// arithmetic validation, and every backend attempt made on the way.
type Result struct {
	Backend    string                    `json:"provider_used"`
	Invoice    *invoice.Invoice          `json:"invoice"`
	Validation *invoice.ValidationResult `json:"validation"`
	Attempts   []metrics.Attempt         `json:"attempts,omitempty"`
}

// Normalizer post-processes a successfully extracted invoice, e.g. to
// resolve rubro codes. It must not reject the invoice.
type Normalizer interface {
	Apply(inv *invoice.Invoice) int
}

type Orchestrator struct {
	registry   *extract.Registry
	collector  *metrics.Collector
	normalizer Normalizer // optional
	timeout    time.Duration
	log        *slog.Logger
}

// New wires the pipeline. timeout bounds each individual backend
// attempt; zero disables the per-attempt deadline.
func New(registry *extract.Registry, collector *metrics.Collector, normalizer Normalizer, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   registry,
		collector:  collector,
		normalizer: normalizer,
		timeout:    timeout,
		log:        logger,
	}
}

// candidates resolves the ordered backend list for one request.
// A preferred backend, when given, is the sole candidate: explicit
// choice never silently falls through to another backend.
func (o *Orchestrator) candidates(preferred string) ([]extract.Backend, error) {
	if preferred != "" {
		b, ok := o.registry.Get(preferred)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, preferred)
		}
		if !b.Available() {
			return nil, fmt.Errorf("%w: %q is not configured", ErrNoBackendAvailable, preferred)
		}
		return []extract.Backend{b}, nil
	}

	var out []extract.Backend
	for _, name := range o.registry.Available() {
		if b, ok := o.registry.Get(name); ok {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoBackendAvailable
	}
	return out, nil
}

// Process runs the document through the backend chain. The first backend
// to return an invoice wins; its output is validated and returned even
// when validation finds arithmetic errors. Every attempt, successful or
// not, lands in the metrics collector.
func (o *Orchestrator) Process(ctx context.Context, doc extract.Document, preferred string) (*Result, error) {
	backends, err := o.candidates(preferred)
	if err != nil {
		o.log.Warn("orchestrator.no_candidates", "preferred", preferred, "error", err)
		return nil, err
	}

	attempts := make([]metrics.Attempt, 0, len(backends))
	for _, b := range backends {
		inv, attempt := o.tryBackend(ctx, b, doc)
		attempts = append(attempts, attempt)

		if inv != nil {
			return o.finish(doc, b.Name(), inv, attempts), nil
		}

		// The document's own context expired: further backends would
		// see the same dead context, stop here.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &AllFailedError{Attempts: attempts}
}

// tryBackend runs one bounded extraction attempt and records it.
func (o *Orchestrator) tryBackend(ctx context.Context, b extract.Backend, doc extract.Document) (*invoice.Invoice, metrics.Attempt) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if o.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	inv, err := b.Extract(attemptCtx, doc)
	elapsed := time.Since(start)

	attempt := metrics.Attempt{
		Backend:    b.Name(),
		Filename:   doc.Filename,
		StartedAt:  start,
		Duration:   elapsed,
		DurationMS: elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		attempt.ErrorKind = string(extract.KindOf(err))
		o.log.Warn("orchestrator.attempt_failed",
			"backend", b.Name(),
			"kind", attempt.ErrorKind,
			"error", err,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	} else {
		attempt.Confidence = inv.Confidence
		o.log.Info("orchestrator.attempt_ok",
			"backend", b.Name(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	o.collector.Record(attempt)

	if err != nil {
		return nil, attempt
	}
	return inv, attempt
}

// finish normalizes and validates the winning invoice.
func (o *Orchestrator) finish(doc extract.Document, backend string, inv *invoice.Invoice, attempts []metrics.Attempt) *Result {
	if o.normalizer != nil {
		if n := o.normalizer.Apply(inv); n > 0 {
			o.log.Info("orchestrator.rubros_normalized", "backend", backend, "matched", n)
		}
	}
	vr := invoice.Validate(inv)

	o.log.Info("orchestrator.process_ok",
		"backend", backend,
		"filename", doc.Filename,
		"is_valid", vr.IsValid,
		"issues", len(vr.Issues),
		"attempts", len(attempts),
	)
	return &Result{
		Backend:    backend,
		Invoice:    inv,
		Validation: vr,
		Attempts:   attempts,
	}
}
