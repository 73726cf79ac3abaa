package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	QueryPath           = "/api/query"
	SampleQuestionsPath = "/api/sample-questions"
	HealthPath          = "/api/health"

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 16 << 20
)

// ErrResponseTooLarge is returned when a 2xx body exceeds the client's body limit.
var ErrResponseTooLarge = errors.New("response too large")

// ErrEmptyResponse is returned by Query when the backend answered with a 2xx
// status but without a usable JSON object body.
var ErrEmptyResponse = errors.New("no response received")

// HTTPError is returned for non-2xx responses. Body holds the raw response body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the normalized answer of the query endpoint.
type QueryResponse struct {
	Answer   string
	Sources  []conversation.SourceCitation
	Data     map[string]interface{}
	Metadata map[string]interface{}
}

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout bounds every request made by the client. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(client *Client) {
		client.userAgent = ua
	}
}

// WithMaxBodySize sets how many bytes of a response body are accepted. Non-positive values keep the default.
func WithMaxBodySize(n int64) Option {
	return func(client *Client) {
		if n > 0 {
			client.maxBodySize = n
		}
	}
}

// New creates a client for the service at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, urlOptions URLOptions, options ...Option) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL, urlOptions)
	if err != nil {
		return nil, err
	}

	ret := &Client{
		baseURL:     normalized,
		httpClient:  &http.Client{},
		userAgent:   "samarth",
		maxBodySize: DefaultMaxBodySize,
	}
	for _, option := range options {
		option(ret)
	}
	return ret, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Query sends a single question to the query endpoint.
func (c *Client) Query(ctx context.Context, text string) (*QueryResponse, error) {
	body, err := json.Marshal(QueryRequest{Query: text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal query")
	}

	b, err := c.do(ctx, http.MethodPost, QueryPath, body)
	if err != nil {
		return nil, err
	}

	resp, ok := decodeQueryResponse(b)
	if !ok {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}

func (c *Client) SampleQuestions(ctx context.Context) ([]string, error) {
	b, err := c.do(ctx, http.MethodGet, SampleQuestionsPath, nil)
	if err != nil {
		return nil, err
	}

	var questions []string
	if err := json.Unmarshal(b, &questions); err != nil {
		return nil, errors.Wrap(err, "failed to decode sample questions")
	}
	ret := make([]string, 0, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q) != "" {
			ret = append(ret, q)
		}
	}
	return ret, nil
}

func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	b, err := c.do(ctx, http.MethodGet, HealthPath, nil)
	if err != nil {
		return nil, err
	}

	var status HealthStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return nil, errors.Wrap(err, "failed to decode health status")
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, errors.Wrapf(err, "failed to send request to %s", path)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	tooLarge := int64(len(b)) > c.maxBodySize
	if tooLarge {
		b = b[:c.maxBodySize]
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(b)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: b}
	}

	if tooLarge {
		log.Warn().Str("path", path).Int64("limit", c.maxBodySize).Msg("response body exceeds limit")
		return nil, errors.Wrapf(ErrResponseTooLarge, "%s returned more than %d bytes", path, c.maxBodySize)
	}

	return b, nil
}
