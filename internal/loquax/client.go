package loquax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "http://localhost:5000"
	DefaultEndpoint = "/"
)

// Client posts TranslationRequests to a single Loquax endpoint.
// It is safe for concurrent use.
type Client struct {
	baseURL  string
	endpoint string
	client   *http.Client
	logger   *zap.Logger

	timeout    time.Duration
	hasTimeout bool
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithEndpoint sets the request path. The service answers on "/" and "/loquax".
func WithEndpoint(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.endpoint = path
		}
	}
}

// WithTimeout bounds each exchange. Zero means no timeout. NewClient applies
// it to a copy of the HTTP client after all options have run.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.hasTimeout = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		endpoint: DefaultEndpoint,
		client:   &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hasTimeout {
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}
	return c
}

// URL returns the absolute address requests are posted to.
func (c *Client) URL() string {
	path := c.endpoint
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Translate performs exactly one POST exchange. The returned error wraps one
// of ErrTransport, ErrDecode or ErrContract.
func (c *Client) Translate(ctx context.Context, req TranslationRequest) (*TranslationResponse, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}

	c.logger.Debug("loquax exchange",
		zap.String("url", c.URL()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	return DecodeResponse(raw)
}

// Ping issues a GET on the endpoint; the service renders its form page there.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// EncodeRequest renders req as compact JSON without HTML escaping and
// without a trailing newline.
func EncodeRequest(req TranslationRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeResponse parses a service reply. Bodies that are not JSON yield
// ErrDecode; JSON without a string "translation" yields ErrContract.
func DecodeResponse(raw []byte) (*TranslationResponse, error) {
	if !json.Valid(raw) {
		return nil, ErrDecode
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrContract)
	}

	value, ok := fields["translation"]
	if !ok {
		return nil, ErrContract
	}

	// null would unmarshal into a string without error.
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		return nil, fmt.Errorf("%w: translation is null", ErrContract)
	}

	var out TranslationResponse
	if err := json.Unmarshal(value, &out.Translation); err != nil {
		return nil, fmt.Errorf("%w: translation is not a string", ErrContract)
	}
	return &out, nil
}
