// Package llama implements the cloud document-AI extraction backend on
// the Llama Cloud extraction-agent API: upload the document, start an
// extraction job against a reusable invoice agent, poll until done,
// fetch the structured result.
package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/invoice"
	"github.com/facturai/invoice-engine/internal/llm"
)

const backendName = "llama"

type Config struct {
	APIKey       string
	BaseURL      string // default https://api.cloud.llamaindex.ai/api/v1
	AgentName    string // default "invoice_parser"
	PollInterval time.Duration
	Timeout      time.Duration // http client timeout per call, not per job
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger

	mu      sync.Mutex
	agentID string // cached after first resolution
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloud.llamaindex.ai/api/v1"
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "invoice_parser"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
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
		return nil, extract.NewBackendError(backendName, extract.KindUnavailable, fmt.Errorf("LLAMA_API_KEY not set"))
	}

	agentID, err := c.ensureAgent(ctx)
	if err != nil {
		return nil, c.classify(err)
	}

	fileID, err := c.uploadFile(ctx, doc)
	if err != nil {
		c.log.Error("llama.extract.upload_failed", "req_id", rid, "error", err)
		return nil, c.classify(err)
	}

	jobID, err := c.startJob(ctx, agentID, fileID)
	if err != nil {
		c.log.Error("llama.extract.start_job_failed", "req_id", rid, "error", err)
		return nil, c.classify(err)
	}
	c.log.Info("llama.extract.job_started", "req_id", rid, "job_id", jobID, "file_id", fileID)

	raw, err := c.awaitResult(ctx, jobID)
	if err != nil {
		c.log.Error("llama.extract.job_failed", "req_id", rid, "job_id", jobID,
			"error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, c.classify(err)
	}

	inv, err := mapResult(raw)
	if err != nil {
		return nil, extract.NewBackendError(backendName, extract.KindParseFailure, err)
	}

	c.log.Info("llama.extract.ok",
		"req_id", rid,
		"provider", inv.Provider.Name,
		"line_items", len(inv.LineItems),
		"total", inv.Totals.Total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

type httpStatusError struct {
	status int
	err    error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func (c *Client) classify(err error) error {
	kind := extract.KindOf(err)
	var se *httpStatusError
	if errors.As(err, &se) && se.status != 0 {
		switch se.status {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = extract.KindAuthFailed
		case http.StatusUnprocessableEntity:
			kind = extract.KindMalformedDocument
		default:
			kind = extract.KindUpstreamError
		}
	}
	return extract.NewBackendError(backendName, kind, err)
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"accept":        "application/json",
		"Authorization": "Bearer " + c.cfg.APIKey,
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// ensureAgent resolves (or creates) the named extraction agent once and
// caches its id for the process lifetime.
func (c *Client) ensureAgent(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentID != "" {
		return c.agentID, nil
	}

	raw, status, err := llm.SendJSON(ctx, c.httpClient, http.MethodGet,
		c.url("/extraction/extraction-agents"), nil, c.headers(), c.log)
	if err != nil {
		return "", &httpStatusError{status: status, err: fmt.Errorf("list agents: %w", err)}
	}
	var agents []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &agents); err != nil {
		return "", fmt.Errorf("decode agents: %w", err)
	}
	for _, a := range agents {
		if a.Name == c.cfg.AgentName {
			c.agentID = a.ID
			return c.agentID, nil
		}
	}

	payload := map[string]any{
		"name":        c.cfg.AgentName,
		"data_schema": agentDataSchema(),
		"config": map[string]any{
			"extraction_target": "PER_DOC",
			"extraction_mode":   "BALANCED",
		},
	}
	raw, status, err = llm.SendJSON(ctx, c.httpClient, http.MethodPost,
		c.url("/extraction/extraction-agents"), payload, c.headers(), c.log)
	if err != nil {
		return "", &httpStatusError{status: status, err: fmt.Errorf("create agent: %w", err)}
	}
	var agent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &agent); err != nil || agent.ID == "" {
		return "", fmt.Errorf("decode created agent: %w", err)
	}
	c.agentID = agent.ID
	c.log.Info("llama.agent.created", "agent_id", c.agentID, "name", c.cfg.AgentName)
	return c.agentID, nil
}

func (c *Client) uploadFile(ctx context.Context, doc extract.Document) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("upload_file", doc.Filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(doc.Bytes); err != nil {
		return "", err
	}
	if err := w.WriteField("purpose", "extract"); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/files"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("llama.upload.body_close_error", "error", cerr)
		}
	}()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", &httpStatusError{status: resp.StatusCode, err: fmt.Errorf("upload status %d: %s", resp.StatusCode, truncate(raw, 512))}
	}
	var file struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &file); err != nil || file.ID == "" {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return file.ID, nil
}

func (c *Client) startJob(ctx context.Context, agentID, fileID string) (string, error) {
	payload := map[string]any{
		"extraction_agent_id": agentID,
		"file_id":             fileID,
	}
	raw, status, err := llm.SendJSON(ctx, c.httpClient, http.MethodPost,
		c.url("/extraction/jobs"), payload, c.headers(), c.log)
	if err != nil {
		return "", &httpStatusError{status: status, err: fmt.Errorf("start job: %w", err)}
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &job); err != nil || job.ID == "" {
		return "", fmt.Errorf("decode job response: %w", err)
	}
	return job.ID, nil
}

// awaitResult polls the job until it completes. The per-backend deadline
// on ctx bounds the wait; expiry surfaces as a timeout-kind failure.
func (c *Client) awaitResult(ctx context.Context, jobID string) ([]byte, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		raw, status, err := llm.SendJSON(ctx, c.httpClient, http.MethodGet,
			c.url("/extraction/jobs/"+jobID), nil, c.headers(), c.log)
		if err != nil {
			return nil, &httpStatusError{status: status, err: fmt.Errorf("poll job: %w", err)}
		}
		var st struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("decode job status: %w", err)
		}

		switch strings.ToUpper(st.Status) {
		case "SUCCESS", "COMPLETED":
			result, status, err := llm.SendJSON(ctx, c.httpClient, http.MethodGet,
				c.url("/extraction/jobs/"+jobID+"/result"), nil, c.headers(), c.log)
			if err != nil {
				return nil, &httpStatusError{status: status, err: fmt.Errorf("fetch result: %w", err)}
			}
			return result, nil
		case "FAILED", "ERROR", "CANCELLED":
			return nil, fmt.Errorf("extraction job %s ended as %s", jobID, st.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
