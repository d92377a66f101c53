package clients

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

	"gigs/session"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/lithammer/shortuuid/v3"
)

const (
	headerCorrelationID  = "Correlation-ID"
	headerIdempotencyKey = "Idempotency-Key"

	defaultMaxRetries      = 3
	defaultInitialInterval = time.Second
)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetry overrides the backoff used for transient failures. The delay
// doubles after each retry, starting at initial.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(client *Client) {
		client.maxRetries = maxRetries
		client.initialInterval = initial
	}
}

type Client struct {
	baseURL         string
	httpClient      *http.Client
	session         *session.Session
	maxRetries      uint64
	initialInterval time.Duration
}

func New(baseURL string, s *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		session:         s,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method         string
	path           string
	body           any
	idempotencyKey string
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.initialInterval << c.maxRetries
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// do sends req and decodes the response into out. Network failures and 5xx
// responses are retried; everything else is returned as is.
func (c *Client) do(ctx context.Context, req request, out any) error {
	logger := log.FromContext(ctx).WithField("path", req.path)

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}
	}

	correlationID := log.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = "gen_" + shortuuid.New()
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := c.send(ctx, req, payload, correlationID, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WithError(err).Warnf("Request failed, retrying in %s", wait)
	}

	err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, ctxErr)
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		c.session.Invalidate(ctx, fmt.Sprintf("%s %s returned 401", req.method, req.path))
	case errors.Is(err, ErrForbidden):
		c.session.Invalidate(ctx, fmt.Sprintf("%s %s returned 403", req.method, req.path))
	}

	if retryable(err) {
		return &TransientError{Attempts: attempts, Err: err}
	}
	return err
}

func (c *Client) send(ctx context.Context, req request, payload []byte, correlationID string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(headerCorrelationID, correlationID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.idempotencyKey != "" {
		httpReq.Header.Set(headerIdempotencyKey, req.idempotencyKey)
	}

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &networkError{err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case res.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case res.StatusCode >= http.StatusBadRequest:
		return newAPIError(res)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func newAPIError(res *http.Response) *APIError {
	apiErr := &APIError{StatusCode: res.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}

	return apiErr
}
