// Package nomi is a small client for the Nomi REST API.
package nomi

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public Nomi API endpoint.
const DefaultBaseURL = "https://api.nomi.ai/v1"

const tracerName = "github.com/nomirelay/nomirelay/internal/nomi"

// Client talks to the Nomi API with a single API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a Client. The default HTTP client has no timeout; the
// caller's context bounds each request.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API endpoint in use.
func (c *Client) BaseURL() string { return c.baseURL }

// ListNomis returns every Nomi on the account.
func (c *Client) ListNomis(ctx context.Context) ([]Nomi, error) {
	var resp listResponse
	if err := c.do(ctx, "nomi.list", http.MethodGet, "/nomis", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nomis, nil
}

// GetNomi fetches one Nomi by UUID.
func (c *Client) GetNomi(ctx context.Context, id string) (*Nomi, error) {
	var n Nomi
	if err := c.do(ctx, "nomi.get", http.MethodGet, "/nomis/"+url.PathEscape(id), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// SendMessage sends text to the Nomi and waits for its reply. It returns the
// message as recorded by the API and the Nomi's reply.
func (c *Client) SendMessage(ctx context.Context, id, text string) (sent, reply *Message, err error) {
	var resp chatResponse
	body := chatRequest{MessageText: text}
	if err := c.do(ctx, "nomi.chat", http.MethodPost, "/nomis/"+url.PathEscape(id)+"/chat", body, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.SentMessage, &resp.ReplyMessage, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("nomi: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("nomi: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nomi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nomi: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if len(data) > 0 && json.Unmarshal(data, &er) == nil {
		apiErr.Type = er.Error.Type
		apiErr.Message = er.Error.Message
	}
	if apiErr.Type == "" && apiErr.Message == "" && len(data) > 0 {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsNotFound reports whether err is an API error for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
