package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/asyncpoller/api/internal/config"
)

const maxResponseBytes = 1 << 20

var (
	ErrTargetNotConfigured = errors.New("webhook target not configured")
	ErrUnknownWorkflow     = errors.New("unknown workflow")
	ErrTimeout             = errors.New("webhook request timed out")
)

// WorkflowCaller defines the operations a resolution worker needs from the
// downstream workflow engine
type WorkflowCaller interface {
	ResolveTarget(workflow string) (string, error)
	Call(ctx context.Context, req *CallRequest) (*CallResponse, error)
}

// WebhookClient implements WorkflowCaller for webhook-triggered workflows
type WebhookClient struct {
	httpClient    *http.Client
	baseURL       string
	path          string
	workflows     map[string]string
	timeout       time.Duration
	defaultMethod string
	authToken     string
	headers       map[string]string
	logger        zerolog.Logger
}

// CallRequest is one attempt against the workflow engine
type CallRequest struct {
	URL           string
	Method        string
	Text          string
	CorrelationID string
}

// CallResponse is the raw outcome of an attempt
type CallResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status
func (r *CallResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// webhookBody carries the text under every field name workflows commonly read
type webhookBody struct {
	Keywords      string `json:"keywords"`
	Message       string `json:"message"`
	Text          string `json:"text"`
	CorrelationID string `json:"correlationId"`
}

// NewWebhookClient creates a new workflow engine client
func NewWebhookClient(cfg *config.WebhookConfig, logger zerolog.Logger) *WebhookClient {
	timeout := cfg.HTTPTimeout()
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.DefaultMethod))
	if method != http.MethodGet {
		method = http.MethodPost
	}
	workflows := make(map[string]string, len(cfg.Workflows))
	for name, path := range cfg.Workflows {
		workflows[strings.ToLower(name)] = path
	}

	return &WebhookClient{
		// per-attempt timeouts are applied through the request context
		httpClient:    &http.Client{},
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		path:          strings.TrimSpace(cfg.Path),
		workflows:     workflows,
		timeout:       timeout,
		defaultMethod: method,
		authToken:     cfg.AuthToken,
		headers:       cfg.Headers,
		logger:        logger.With().Str("component", "webhook").Logger(),
	}
}

// IsConfigured returns true if a default target can be built
func (c *WebhookClient) IsConfigured() bool {
	_, err := c.ResolveTarget("")
	return err == nil
}

// ResolveTarget builds the full webhook URL for a workflow. An empty
// workflow selects the default path.
func (c *WebhookClient) ResolveTarget(workflow string) (string, error) {
	path := c.path
	if name := strings.ToLower(strings.TrimSpace(workflow)); name != "" {
		override, ok := c.workflows[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflow)
		}
		path = strings.TrimSpace(override)
	}

	if c.baseURL == "" || path == "" {
		return "", ErrTargetNotConfigured
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if _, err := url.ParseRequestURI(target); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTargetNotConfigured, err)
	}
	return target, nil
}

// Call performs one attempt with the per-attempt timeout. A timeout of the
// attempt itself is reported as ErrTimeout; expiry of ctx is returned as the
// context error.
func (c *WebhookClient) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(attemptCtx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.String()).
		Str("job_id", req.CorrelationID).
		Msg("→ webhook request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			c.logger.Warn().Str("job_id", req.CorrelationID).Dur("timeout", c.timeout).Msg("✗ webhook timed out")
			return nil, fmt.Errorf("%w after %v", ErrTimeout, c.timeout)
		}
		c.logger.Warn().Err(err).Str("job_id", req.CorrelationID).Msg("✗ webhook request failed")
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, c.timeout)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("job_id", req.CorrelationID).
		Int("bytes", len(body)).
		Msg("← webhook response")

	return &CallResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *WebhookClient) newRequest(ctx context.Context, req *CallRequest) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = c.defaultMethod
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	q := u.Query()
	q.Set("q", req.Text)
	q.Set("cid", req.CorrelationID)
	u.RawQuery = q.Encode()

	var body io.Reader
	if method == http.MethodPost {
		bodyBytes, err := json.Marshal(webhookBody{
			Keywords:      req.Text,
			Message:       req.Text,
			Text:          req.Text,
			CorrelationID: req.CorrelationID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.5")
	httpReq.Header.Set("X-Correlation-Id", req.CorrelationID)
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return httpReq, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
