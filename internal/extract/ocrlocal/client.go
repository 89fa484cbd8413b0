// Package ocrlocal implements the last-resort extraction backend: local
// OCR plus regex heuristics, no network calls. It recovers less detail
// than the cloud backends but works offline.
package ocrlocal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/invoice"
	"github.com/facturai/invoice-engine/internal/ocr"
)

const backendName = "ocr"

type Client struct {
	ocr *ocr.Extractor
	log *slog.Logger
}

func New(ocrx *ocr.Extractor, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{ocr: ocrx, log: logger}
}

func (c *Client) Name() string { return backendName }

// Available checks that the OCR binaries are on PATH.
func (c *Client) Available() bool { return c.ocr.ToolsPresent() }

func (c *Client) Extract(ctx context.Context, doc extract.Document) (*invoice.Invoice, error) {
	start := time.Now()

	if !c.Available() {
		return nil, extract.NewBackendError(backendName, extract.KindUnavailable, fmt.Errorf("ocr tools not installed"))
	}

	res, err := c.ocr.ExtractBytes(ctx, doc.Bytes, doc.Filename)
	if err != nil {
		return nil, extract.NewBackendError(backendName, extract.KindMalformedDocument, fmt.Errorf("ocr stage: %w", err))
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, extract.NewBackendError(backendName, extract.KindMalformedDocument, fmt.Errorf("ocr produced no text"))
	}

	inv := parseInvoice(res.Text)
	if inv.Provider.Name == "" && inv.Totals.Total == 0 && len(inv.LineItems) == 0 {
		return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("no invoice fields recognized"))
	}

	// Blend the parse confidence with the OCR stage's own estimate.
	if res.Confidence > 0 && inv.Confidence != nil {
		blended := 0.6**inv.Confidence + 0.4*res.Confidence
		inv.Confidence = &blended
	}

	c.log.Info("ocr.extract.ok",
		"provider", inv.Provider.Name,
		"line_items", len(inv.LineItems),
		"total", inv.Totals.Total,
		"ocr_method", res.Method,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}
