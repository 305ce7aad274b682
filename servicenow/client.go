// Package servicenow is a thin client for the ServiceNow knowledge base
// Table and Attachment REST APIs. Retry for transient failures lives here,
// at the transport boundary; callers see a single TransportError per
// failed operation.
package servicenow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	knowledgeTablePath   = "/api/now/table/kb_knowledge"
	attachmentUploadPath = "/api/now/attachment/upload"
)

// Config holds the instance credentials. TimeoutSeconds only applies when
// the caller does not inject its own http.Client.
type Config struct {
	InstanceURL    string `json:"instance_url"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// TransportError wraps any failure talking to the store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("servicenow %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to one ServiceNow instance.
type Client struct {
	cfg     Config
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// New creates a Client. A nil http.Client gets a default with the
// configured timeout; a nil logger is replaced by a nop logger.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.InstanceURL == "" {
		return nil, errors.New("config must include instance_url")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("config must include username and password")
	}
	if client == nil {
		timeout := 60 * time.Second
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		client:  client,
		baseURL: strings.TrimRight(cfg.InstanceURL, "/"),
		logger:  logger,
	}, nil
}

// Create inserts a new knowledge article and returns the stored record.
func (c *Client) Create(ctx context.Context, shortDescription, html, kbBaseSysID string, extra map[string]string) (Record, error) {
	payload := "{}"
	payload, _ = sjson.Set(payload, "short_description", shortDescription)
	payload, _ = sjson.Set(payload, "text", html)
	payload, _ = sjson.Set(payload, "kb_knowledge_base", kbBaseSysID)
	for k, v := range extra {
		payload, _ = sjson.Set(payload, k, v)
	}

	result, err := c.do(ctx, "create", http.MethodPost, knowledgeTablePath, []byte(payload))
	if err != nil {
		return Record{}, err
	}
	rec := parseRecord(result)
	c.logger.Info("created knowledge article",
		zap.String("sys_id", rec.SysID), zap.String("number", rec.Number))
	return rec, nil
}

// Update patches fields on an existing article.
func (c *Client) Update(ctx context.Context, sysID string, fields map[string]string) (Record, error) {
	payload := "{}"
	for k, v := range fields {
		payload, _ = sjson.Set(payload, k, v)
	}

	result, err := c.do(ctx, "update", http.MethodPatch, knowledgeTablePath+"/"+sysID, []byte(payload))
	if err != nil {
		return Record{}, err
	}
	rec := parseRecord(result)
	c.logger.Info("updated knowledge article", zap.String("sys_id", sysID))
	return rec, nil
}

// Get reads an article by sys_id.
func (c *Client) Get(ctx context.Context, sysID string) (Record, error) {
	result, err := c.do(ctx, "get", http.MethodGet, knowledgeTablePath+"/"+sysID, nil)
	if err != nil {
		return Record{}, err
	}
	return parseRecord(result), nil
}

// Attach uploads one file against an article via the attachment API.
func (c *Client) Attach(ctx context.Context, sysID, path string) (AttachResult, error) {
	build := func() (*http.Request, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		defer file.Close()

		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		if err := writer.WriteField("table_name", "kb_knowledge"); err != nil {
			return nil, err
		}
		if err := writer.WriteField("table_sys_id", sysID); err != nil {
			return nil, err
		}
		part, err := writer.CreateFormFile("uploadFile", filepath.Base(path))
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+attachmentUploadPath, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req, nil
	}

	result, err := c.roundTrip(ctx, "attach", build)
	if err != nil {
		return AttachResult{}, err
	}
	res := parseAttachResult(result)
	c.logger.Info("uploaded attachment",
		zap.String("sys_id", sysID), zap.String("file", path))
	return res, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) (gjson.Result, error) {
	build := func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
	return c.roundTrip(ctx, op, build)
}

// roundTrip executes one logical operation with bounded exponential
// backoff. Network errors and 5xx responses are retried; 4xx responses
// fail immediately.
func (c *Client) roundTrip(ctx context.Context, op string, build func() (*http.Request, error)) (gjson.Result, error) {
	var raw []byte
	attempt := func() error {
		req, err := build()
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body)))
		}
		raw = body
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return gjson.Result{}, &TransportError{Op: op, Err: err}
	}
	return gjson.GetBytes(raw, "result"), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
