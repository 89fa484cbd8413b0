// Package openai implements the LLM-over-OCR extraction backend: the
// document is OCR'd locally, then the text is parsed into structured
// invoice fields by a chat/completions call constrained to a JSON schema.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/invoice"
	"github.com/facturai/invoice-engine/internal/llm"
	"github.com/facturai/invoice-engine/internal/ocr"
)

const backendName = "openai"

type Client struct {
	cfg        Config
	httpClient *http.Client
	ocr        *ocr.Extractor
	log        *slog.Logger
}

// New builds the backend. The OCR extractor supplies the text stage;
// the backend owns no OCR logic of its own.
func New(cfg Config, ocrx *ocr.Extractor, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		ocr:        ocrx,
		log:        logger,
	}
}

func (c *Client) Name() string { return backendName }

// Available is credential presence only; no network round-trip.
func (c *Client) Available() bool { return c.cfg.APIKey != "" }

func (c *Client) Extract(ctx context.Context, doc extract.Document) (*invoice.Invoice, error) {
	rid := uuid.New().String()
	start := time.Now()

	if !c.Available() {
		return nil, extract.NewBackendError(backendName, extract.KindUnavailable, fmt.Errorf("OPENAI_API_KEY not set"))
	}

	ocrRes, err := c.ocr.ExtractBytes(ctx, doc.Bytes, doc.Filename)
	if err != nil {
		c.log.Error("openai.extract.ocr_failed", "req_id", rid, "error", err)
		return nil, extract.NewBackendError(backendName, extract.KindMalformedDocument, fmt.Errorf("ocr stage: %w", err))
	}
	if strings.TrimSpace(ocrRes.Text) == "" {
		return nil, extract.NewBackendError(backendName, extract.KindMalformedDocument, fmt.Errorf("ocr produced no text"))
	}

	c.log.Info("openai.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(ocrRes.Text),
		"ocr_method", ocrRes.Method,
	)

	schema := llm.BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt()},
			{"role": "user", "content": userPrompt(ocrRes.Text, doc.Filename) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, httpErr := llm.SendJSON(ctx, c.httpClient, http.MethodPost, endpoint, body, headers, c.log)
	if httpErr != nil {
		c.log.Error("openai.extract.http_error",
			"req_id", rid, "status", status, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		kind := extract.KindOf(httpErr)
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			kind = extract.KindAuthFailed
		} else if status != 0 {
			kind = extract.KindUpstreamError
		}
		return nil, extract.NewBackendError(backendName, kind, httpErr)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("openai.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("no choices in openai response"))
	}

	content := []byte(llm.StripCodeFences(cc.Choices[0].Message.Content))

	// Validate strictly first; on failure sanitize once and re-validate.
	if err := llm.ValidateJSONAgainstSchema(schema, content); err != nil {
		cleaned, touched, sErr := llm.NormalizeInvoiceJSON(content, c.log)
		if sErr != nil {
			c.log.Error("openai.extract.sanitize_failed", "req_id", rid, "error", sErr)
			return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("sanitize: %w", sErr))
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("openai.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(content))
			return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("schema validation: %w", vErr))
		}
		c.log.Warn("openai.extract.lenient_sanitize_applied", "req_id", rid, "touched", touched)
		content = cleaned
	}

	var p payload
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, extract.NewBackendError(backendName, extract.KindParseFailure, fmt.Errorf("unmarshal fields: %w", err))
	}
	inv := p.toInvoice()
	if inv.Confidence == nil && ocrRes.Confidence > 0 {
		// fall back to the OCR stage confidence when the model gave none
		conf := ocrRes.Confidence
		inv.Confidence = &conf
	}

	c.log.Info("openai.extract.ok",
		"req_id", rid,
		"provider", inv.Provider.Name,
		"line_items", len(inv.LineItems),
		"total", inv.Totals.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
