package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/auth"
)

const (
	defaultTimeout   = 10 * time.Second
	apiKeyHeader     = "X-Api-Key"
	requestIDHeader  = "X-Request-Id"
	maxErrorBodySize = 1 << 16
)

// number is a decimal that encodes as a bare JSON number, the form the backend stores.
// Decoding accepts both numbers and strings.
type number struct {
	decimal.Decimal
}

func num(d decimal.Decimal) number { return number{Decimal: d} }

// MarshalJSON implements json.Marshaler.
func (n number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Config configures the REST backend client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient HTTPClient
}

// Client talks to the storefront REST backend. It forwards the caller's Firebase ID token when
// the request context carries an identity, so the backend can tell registered buyers apart.
type Client struct {
	base   *url.URL
	apiKey string
	http   HTTPClient
}

// NewClient constructs a backend client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("backend: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		base:   parsed,
		apiKey: strings.TrimSpace(cfg.APIKey),
		http:   client,
	}, nil
}

// envelope is the {success, data, message} wrapper most backend endpoints reply with.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, endpoint string, payload, out any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("backend: encode %s payload: %w", op, err)
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	ref := &url.URL{Path: strings.TrimPrefix(endpoint, "/")}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.RawToken() != "" {
		req.Header.Set("Authorization", "Bearer "+identity.RawToken())
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromResponse(op, resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decodeBody(op, resp.StatusCode, body, out)
}

// decodeBody unwraps the {success, data} envelope when present and decodes the payload into out.
func decodeBody(op string, status int, body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Success != nil || len(env.Data) > 0) {
		if env.Success != nil && !*env.Success {
			return &Error{Op: op, Status: status, Message: env.Message, Rejected: true}
		}
		if len(env.Data) > 0 {
			body = env.Data
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorFromResponse(op string, status int, body []byte) error {
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	var env envelope
	message := ""
	if err := json.Unmarshal(body, &env); err == nil {
		message = strings.TrimSpace(env.Message)
	}
	if message == "" && len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		message = strings.TrimSpace(string(body))
	}
	return &Error{Op: op, Status: status, Message: message}
}
