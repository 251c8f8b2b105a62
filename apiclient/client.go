package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout       = 15 * time.Second
	DefaultRetryInterval = 250 * time.Millisecond

	HeaderRequestID = "X-Request-ID"
	HeaderAudience  = "X-Auth0-Audience"
)

// Response is the API's success envelope
type Response[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      T      `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Client is the single HTTP client used for all API calls. Every request
// passes through the outbound chain (request id, static headers, bearer
// token) and the inbound chain (401 handling, status logging).
type Client struct {
	baseURL       string
	httpClient    *http.Client
	maxRetries    int
	retryInterval time.Duration
	log           zerolog.Logger
}

type options struct {
	transport      http.RoundTripper
	timeout        time.Duration
	store          credentials.Store
	tokens         TokenSource
	onUnauthorized func()
	headers        map[string]string
	devLogging     bool
	maxRetries     int
	retryInterval  time.Duration
	log            zerolog.Logger
	nowFunc        func() time.Time
}

type Option func(*options)

// WithCredentialStore reads the bearer token from store on every request and
// clears store on 401
func WithCredentialStore(store credentials.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTokenSource overrides where the bearer token comes from
func WithTokenSource(tokens TokenSource) Option {
	return func(o *options) {
		o.tokens = tokens
	}
}

// WithUnauthorizedHandler is called after a 401 cleared the credential
func WithUnauthorizedHandler(fn func()) Option {
	return func(o *options) {
		o.onUnauthorized = fn
	}
}

// WithAudience sends the API audience on every request
func WithAudience(audience string) Option {
	return WithHeader(HeaderAudience, audience)
}

func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithRetry sets how often idempotent reads are retried on transient errors
func WithRetry(maxRetries int, interval time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryInterval = interval
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.log = logger
	}
}

// WithDevLogging logs every request and response
func WithDevLogging(enabled bool) Option {
	return func(o *options) {
		o.devLogging = enabled
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

func New(baseURL string, opts ...Option) *Client {
	o := &options{
		transport:     http.DefaultTransport,
		timeout:       DefaultTimeout,
		headers:       map[string]string{"Accept": "application/json"},
		maxRetries:    1,
		retryInterval: DefaultRetryInterval,
		log:           log.Logger,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	tokens := o.tokens
	if tokens == nil && o.store != nil {
		tokens = StoreTokens(o.store, o.nowFunc)
	}

	mw := []Middleware{
		RequestID(),
		StaticHeaders(o.headers),
		Bearer(tokens),
	}
	if o.devLogging {
		mw = append(mw, Logging(o.log))
	}
	mw = append(mw,
		Unauthorized(o.store, o.onUnauthorized),
		StatusLogging(o.log),
	)

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: Chain(o.transport, mw...),
			Timeout:   o.timeout,
		},
		maxRetries:    max(o.maxRetries, 0),
		retryInterval: o.retryInterval,
		log:           o.log,
	}
}

// Do sends in as JSON and decodes the data field of the response envelope
// into out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	body, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var envelope Response[json.RawMessage]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("[apiclient Do] %s %s: %w: invalid response body: %w", method, path, apperrors.ErrRequestFailed, err)
	}
	if !envelope.Success {
		return &Error{
			StatusCode: http.StatusOK,
			Method:     method,
			Path:       path,
			Message:    envelope.Message,
			Timestamp:  envelope.Timestamp,
			Kind:       apperrors.ErrRequestFailed,
		}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("[apiclient Do] %s %s: %w: invalid response data: %w", method, path, apperrors.ErrRequestFailed, err)
	}
	return nil
}

// DoRaw is Do for endpoints that answer without the envelope
func (c *Client) DoRaw(ctx context.Context, method, path string, in, out any) error {
	body, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("[apiclient DoRaw] %s %s: %w: invalid response body: %w", method, path, apperrors.ErrRequestFailed, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in any) ([]byte, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("[apiclient] %s %s: failed to encode request: %w", method, path, err)
		}
	}

	attempt := func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	}
	if !retryable(method) || c.maxRetries == 0 {
		return attempt()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	return backoff.Retry(ctx, func() ([]byte, error) {
		body, err := attempt()
		if err != nil && !errors.Is(err, apperrors.ErrTransient) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Debug().Err(err).Dur("wait", wait).Msg("Retrying API request")
		}),
	)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("[apiclient] %s %s: failed to create request: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("[apiclient] %s %s: %w", method, path, ctxErr)
		}
		return nil, transportError(method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(method, path, resp.StatusCode, body)
	}
	return body, nil
}

func retryable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
