// Package graphql sends queries to a GraphQL endpoint over HTTP.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	rates "go-krypto-rates"
)

const (
	DefaultUserAgent = "krypto-rates-go-client"
	DefaultTimeout   = 30 * time.Second

	requestIDHeader = "X-Request-ID"

	// maxErrorBody bounds how much of a failed response body ends up in a TransportError.
	maxErrorBody = 4 << 10
)

// Request a query and its variables.
type Request struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName,omitempty"`
	Variables     any    `json:"variables,omitempty"`
}

// Response the envelope returned by the endpoint. Data holds one raw value per top level field.
type Response struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []Error                    `json:"errors"`
}

// Error a single error reported by the endpoint.
type Error struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Transport sends a request and returns the decoded envelope.
// Non-success statuses and undecodable envelopes are reported as *rates.TransportError.
type Transport interface {
	Send(ctx context.Context, request Request) (*Response, error)
}

// Option configures a client.
type Option func(*client)

// WithHTTPClient sets the HTTP client used for requests. The client itself is never modified.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each request, connection and body read included.
func WithTimeout(timeout time.Duration) Option {
	return func(c *client) {
		c.timeout = &timeout
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *client) {
		c.header.Set(key, value)
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(userAgent string) Option {
	return func(c *client) {
		c.header.Set("User-Agent", userAgent)
	}
}

// WithRateLimit limits requests to r per second with the given burst. Send blocks until a
// token is available or ctx is done.
func WithRateLimit(r float64, burst int) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger log.Logger) Option {
	return func(c *client) {
		c.logger = logger
	}
}

// client GraphQL over HTTP
type client struct {
	// url endpoint url
	url string

	// httpClient for HTTP requests
	httpClient *http.Client

	// header sent with every request
	header http.Header

	// timeout overrides the timeout of httpClient when set
	timeout *time.Duration

	// limiter is nil unless WithRateLimit is given
	limiter *rate.Limiter

	logger log.Logger
}

// NewClient constructs a Transport posting to url.
func NewClient(url string, options ...Option) Transport {
	c := &client{
		url: url,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		header: http.Header{},
		logger: log.NewNopLogger(),
	}
	c.header.Set("User-Agent", DefaultUserAgent)
	for _, option := range options {
		option(c)
	}
	if c.timeout != nil {
		httpClient := *c.httpClient
		httpClient.Timeout = *c.timeout
		c.httpClient = &httpClient
	}
	return c
}

// Send posts the request and decodes the envelope. Errors inside the envelope are returned
// untouched in Response.Errors.
func (c *client) Send(ctx context.Context, request Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &rates.TransportError{Message: "rate limit", Err: err}
		}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, &rates.TransportError{Message: "building request", Err: errors.Wrap(err, "encoding json")}
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &rates.TransportError{Message: "building request", Err: errors.Wrap(err, "new http request")}
	}
	for key, values := range c.header {
		httpRequest.Header[key] = values
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpRequest.Header.Set(requestIDHeader, requestID)

	level.Debug(c.logger).Log("msg", "sending query", "operation", request.OperationName, "request_id", requestID, "url", c.url)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, &rates.TransportError{Err: errors.Wrap(err, "http post")}
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBody))
		level.Debug(c.logger).Log("msg", "query failed", "request_id", requestID, "status", httpResponse.StatusCode)
		return nil, &rates.TransportError{
			StatusCode: httpResponse.StatusCode,
			Message:    strings.TrimSpace(statusMessage(httpResponse, msg)),
		}
	}

	var response Response
	if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
		return nil, &rates.TransportError{
			StatusCode: httpResponse.StatusCode,
			Message:    "malformed envelope",
			Err:        errors.Wrap(err, "decoding json"),
		}
	}

	level.Debug(c.logger).Log("msg", "query done", "request_id", requestID, "errors", len(response.Errors))
	return &response, nil
}

// statusMessage prefers the first GraphQL error message of a failed response, then its body,
// then the status text.
func statusMessage(response *http.Response, body []byte) string {
	var envelope Response
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Errors) > 0 && envelope.Errors[0].Message != "" {
		return envelope.Errors[0].Message
	}
	if len(bytes.TrimSpace(body)) > 0 {
		return string(body)
	}
	return http.StatusText(response.StatusCode)
}
