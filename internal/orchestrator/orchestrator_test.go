package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/invoice"
	"github.com/facturai/invoice-engine/internal/metrics"
)

type fakeBackend struct {
	name      string
	available bool
	inv       *invoice.Invoice
	err       error
	delay     time.Duration
	calls     int
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Extract(ctx context.Context, _ extract.Document) (*invoice.Invoice, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.inv, nil
}

func goodInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		Provider: invoice.Party{Name: "Proveedor SA", RUT: "76.543.210-K"},
		Totals:   invoice.Totals{Subtotal: 1000, IVA: 190, IVARate: 0.19, Total: 1190},
	}
}

func testDoc() extract.Document {
	return extract.Document{Bytes: []byte("%PDF-1.4"), Filename: "factura.pdf", Format: "pdf"}
}

func newOrch(timeout time.Duration, backends ...extract.Backend) (*Orchestrator, *metrics.Collector) {
	col := metrics.NewCollector(nil, 10)
	reg := extract.NewRegistry(backends...)
	return New(reg, col, nil, timeout, nil), col
}

func TestProcessFallsBackToNextBackend(t *testing.T) {
	first := &fakeBackend{
		name: "llama", available: true,
		err: extract.NewBackendError("llama", extract.KindUpstreamError, errors.New("502")),
	}
	second := &fakeBackend{name: "openai", available: true, inv: goodInvoice()}
	o, col := newOrch(0, first, second)

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Backend)
	assert.True(t, res.Validation.IsValid)

	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].Success)
	assert.Equal(t, "upstream_error", res.Attempts[0].ErrorKind)
	assert.True(t, res.Attempts[1].Success)

	snap := col.Snapshot()
	assert.Equal(t, int64(1), snap["llama"].Failures)
	assert.Equal(t, int64(1), snap["openai"].Successes)
}

func TestProcessSkipsUnavailableBackends(t *testing.T) {
	first := &fakeBackend{name: "llama", available: false, inv: goodInvoice()}
	second := &fakeBackend{name: "openai", available: true, inv: goodInvoice()}
	o, _ := newOrch(0, first, second)

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Backend)
	assert.Zero(t, first.calls)
	require.Len(t, res.Attempts, 1)
}

func TestProcessPreferredIsSoleCandidate(t *testing.T) {
	first := &fakeBackend{name: "llama", available: true, inv: goodInvoice()}
	second := &fakeBackend{
		name: "openai", available: true,
		err: extract.NewBackendError("openai", extract.KindParseFailure, errors.New("bad json")),
	}
	o, _ := newOrch(0, first, second)

	_, err := o.Process(context.Background(), testDoc(), "openai")
	var all *AllFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Attempts, 1)
	assert.Equal(t, "openai", all.Attempts[0].Backend)
	assert.Equal(t, "parse_failure", all.Attempts[0].ErrorKind)
	assert.Zero(t, first.calls, "explicit choice must not fall through")
}

func TestProcessPreferredUnknown(t *testing.T) {
	o, col := newOrch(0, &fakeBackend{name: "llama", available: true, inv: goodInvoice()})

	_, err := o.Process(context.Background(), testDoc(), "gemini")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Empty(t, col.Snapshot(), "no attempt may be recorded")
}

func TestProcessPreferredUnavailable(t *testing.T) {
	o, col := newOrch(0, &fakeBackend{name: "openai", available: false})

	_, err := o.Process(context.Background(), testDoc(), "openai")
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Empty(t, col.Snapshot())
}

func TestProcessNoBackendAvailable(t *testing.T) {
	o, col := newOrch(0,
		&fakeBackend{name: "llama", available: false},
		&fakeBackend{name: "openai", available: false},
	)

	_, err := o.Process(context.Background(), testDoc(), "")
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Empty(t, col.Snapshot())
}

func TestProcessAllFailed(t *testing.T) {
	first := &fakeBackend{
		name: "llama", available: true,
		err: extract.NewBackendError("llama", extract.KindAuthFailed, errors.New("401")),
	}
	second := &fakeBackend{
		name: "ocr", available: true,
		err: extract.NewBackendError("ocr", extract.KindMalformedDocument, errors.New("no text")),
	}
	o, col := newOrch(0, first, second)

	_, err := o.Process(context.Background(), testDoc(), "")
	var all *AllFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Attempts, 2)
	assert.Equal(t, "auth_failed", all.Attempts[0].ErrorKind)
	assert.Equal(t, "malformed_document", all.Attempts[1].ErrorKind)

	snap := col.Snapshot()
	assert.Equal(t, int64(1), snap["llama"].Failures)
	assert.Equal(t, int64(1), snap["ocr"].Failures)
}

func TestProcessAttemptTimeoutFallsBack(t *testing.T) {
	slow := &fakeBackend{name: "llama", available: true, delay: time.Second, inv: goodInvoice()}
	fast := &fakeBackend{name: "openai", available: true, inv: goodInvoice()}
	o, col := newOrch(20*time.Millisecond, slow, fast)

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Backend)

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, "timeout", res.Attempts[0].ErrorKind)
	assert.Equal(t, int64(1), col.Snapshot()["llama"].Failures)
}

func TestProcessParentCancellationStopsChain(t *testing.T) {
	slow := &fakeBackend{name: "llama", available: true, delay: time.Second, inv: goodInvoice()}
	next := &fakeBackend{name: "openai", available: true, inv: goodInvoice()}
	o, _ := newOrch(0, slow, next)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.Process(ctx, testDoc(), "")
	var all *AllFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Attempts, 1)
	assert.Equal(t, "timeout", all.Attempts[0].ErrorKind)
	assert.Zero(t, next.calls, "dead context must not reach further backends")
}

func TestProcessAttemptsCarrySerializedDuration(t *testing.T) {
	b := &fakeBackend{name: "openai", available: true, delay: 30 * time.Millisecond, inv: goodInvoice()}
	o, _ := newOrch(0, b)

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err)
	require.Len(t, res.Attempts, 1)
	assert.Greater(t, res.Attempts[0].DurationMS, int64(0))

	raw, err := json.Marshal(res.Attempts[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"processing_time_ms":0`)
}

func TestProcessFailedAttemptsCarrySerializedDuration(t *testing.T) {
	slow := &fakeBackend{name: "llama", available: true, delay: time.Second, inv: goodInvoice()}
	o, _ := newOrch(20*time.Millisecond, slow)

	_, err := o.Process(context.Background(), testDoc(), "")
	var all *AllFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Attempts, 1)
	assert.Greater(t, all.Attempts[0].DurationMS, int64(0))
}

func TestProcessReturnsInvalidInvoiceWithIssues(t *testing.T) {
	inv := goodInvoice()
	inv.Totals.Total = 9999 // broken arithmetic
	o, _ := newOrch(0, &fakeBackend{name: "openai", available: true, inv: inv})

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err, "validation findings are data, not failures")
	assert.False(t, res.Validation.IsValid)
	assert.NotEmpty(t, res.Validation.Issues)
}

type staticNormalizer struct{ applied int }

func (s *staticNormalizer) Apply(inv *invoice.Invoice) int {
	for i := range inv.LineItems {
		inv.LineItems[i].RubroCode = fmt.Sprintf("R%03d", i+1)
	}
	s.applied++
	return len(inv.LineItems)
}

func TestProcessAppliesNormalizer(t *testing.T) {
	inv := goodInvoice()
	inv.LineItems = []invoice.LineItem{{RubroRaw: "papeleria", Quantity: 1, UnitPrice: 1000, Subtotal: 1000}}
	b := &fakeBackend{name: "openai", available: true, inv: inv}

	col := metrics.NewCollector(nil, 10)
	norm := &staticNormalizer{}
	o := New(extract.NewRegistry(b), col, norm, 0, nil)

	res, err := o.Process(context.Background(), testDoc(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, norm.applied)
	assert.Equal(t, "R001", res.Invoice.LineItems[0].RubroCode)
}
