package apiclient

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

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	idempotencyHeader      = "Idempotency-Key"
	maxResponseBytes       = 1 << 20
)

// ErrInvalidConfig indicates the client was constructed without a base URL.
var ErrInvalidConfig = errors.New("apiclient: invalid config")

// ErrInvalidPathSegment indicates an id that cannot be used as a single URL path segment.
// It wraps domain.ErrValidation and the request is never sent.
var ErrInvalidPathSegment = fmt.Errorf("%w: invalid path segment", domain.ErrValidation)

// HTTPError reports a non-2xx response from the API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("apiclient: %s %s status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Unwrap lets callers match the error against the domain taxonomy.
func (e *HTTPError) Unwrap() []error {
	if e.Status == http.StatusUnauthorized {
		return []error{domain.ErrNetwork, domain.ErrUnauthenticated}
	}
	return []error{domain.ErrNetwork}
}

// IsNotFound reports whether err is an HTTP 404 from the API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}

// Config configures the REST client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	Transport       http.RoundTripper
	Logger          *zap.Logger
}

// Client calls the storefront REST API on behalf of a signed-in user.
// Every call carries the caller's bearer token; the client itself holds no credentials.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *zap.Logger
}

type response struct {
	status int
	body   []byte
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = defaultBreakerFailures
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("apiclient: circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

type call struct {
	method         string
	segments       []string
	body           any
	idempotencyKey string
}

// do executes the call and decodes a 2xx body into out when non-nil.
// Transport failures and 5xx responses count against the breaker; 4xx responses do not.
func (c *Client) do(ctx context.Context, token string, req call, out any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrUnauthenticated
	}
	endpoint, err := c.endpoint(req.segments)
	if err != nil {
		return err
	}
	var payload []byte
	if req.body != nil {
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+token)
		if req.idempotencyKey != "" {
			httpReq.Header.Set(idempotencyHeader, req.idempotencyKey)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		result := &response{status: httpResp.StatusCode, body: data}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return result, c.httpError(req, result)
		}
		return result, nil
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, req.method, strings.Join(req.segments, "/"), err)
	}
	if resp.status >= http.StatusBadRequest {
		return c.httpError(req, resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrNetwork, strings.Join(req.segments, "/"), err)
	}
	return nil
}

// endpoint escapes every segment on its own so an id can never climb out of its route.
func (c *Client) endpoint(segments []string) (string, error) {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." || strings.ContainsAny(segment, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPathSegment, segment)
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	return b.String(), nil
}

func (c *Client) httpError(req call, resp *response) *HTTPError {
	return &HTTPError{
		Method: req.method,
		Path:   "/" + strings.Join(req.segments, "/"),
		Status: resp.status,
		Body:   drainError(resp.body),
	}
}

func drainError(body []byte) string {
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}
