package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

// ClientOptions tunes request timeouts, paging, throttling and retries.
type ClientOptions struct {
	Timeout    time.Duration
	PageSize   int
	RateLimit  int // requests per second
	MaxRetries int
}

// Client is a signed HTTP client for the Intersight REST API.
type Client struct {
	conn       *models.Connection
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	maxRetries uint64
	retryWait  time.Duration
	logger     *zap.Logger
}

// NewClient creates a Client from a validated Connection. A nil signer sends
// unsigned requests.
func NewClient(conn *models.Connection, signer *Signer, opts ClientOptions, logger *zap.Logger) *Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if conn.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	} else if conn.CACert != "" {
		caCertPool := x509.NewCertPool()
		if caCertPool.AppendCertsFromPEM([]byte(conn.CACert)) {
			transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
		}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conn:   conn,
		signer: signer,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit),
		pageSize:   opts.PageSize,
		maxRetries: uint64(opts.MaxRetries),
		retryWait:  500 * time.Millisecond,
		logger:     logger,
	}
}

// APIError is a request the remote system rejected (4xx other than
// authentication and throttling). It is not retried.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// page is the Intersight list response envelope.
type page struct {
	Count   int               `json:"Count"`
	Results []json.RawMessage `json:"Results"`
}

// errorBody is the Intersight error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		return eb.Message
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func (c *Client) url(path string, params url.Values) string {
	u := c.conn.APIURL(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do sends one logical request, retrying throttled calls (any method) and
// transient failures (GET only). Errors are *models.RemoteError for
// connectivity, authentication and server failures, *APIError otherwise.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, int, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, 0, fmt.Errorf("marshaling body: %w", err)
		}
	}
	op := method + " " + path
	idempotent := method == http.MethodGet

	var (
		body    []byte
		status  int
		attempt int
	)
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&models.RemoteError{Op: op, Err: err})
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path, params), bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.signer != nil {
			if err := c.signer.Sign(req, data); err != nil {
				return backoff.Permanent(err)
			}
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			rerr := &models.RemoteError{Op: op, Err: err}
			if idempotent && ctx.Err() == nil {
				return rerr
			}
			return backoff.Permanent(rerr)
		}
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		status = resp.StatusCode
		c.logger.Debug("api request",
			zap.String(logging.FieldMethod, method),
			zap.String(logging.FieldPath, path),
			zap.Int(logging.FieldStatusCode, status),
			zap.Int(logging.FieldAttempt, attempt),
			zap.Int64(logging.FieldDuration, time.Since(start).Milliseconds()))
		if err != nil {
			return backoff.Permanent(&models.RemoteError{Op: op, Status: status, Err: fmt.Errorf("reading response: %w", err)})
		}

		switch {
		case status >= 200 && status < 300:
			return nil
		case status == http.StatusTooManyRequests:
			return &models.RemoteError{Op: op, Status: status, Err: errors.New("rate limited")}
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return backoff.Permanent(&models.RemoteError{Op: op, Status: status, Err: errors.New(errorMessage(body))})
		case status >= 500:
			rerr := &models.RemoteError{Op: op, Status: status, Err: errors.New(errorMessage(body))}
			if idempotent {
				return rerr
			}
			return backoff.Permanent(rerr)
		default:
			return backoff.Permanent(&APIError{Method: method, Path: path, Status: status, Message: errorMessage(body)})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait
	b := backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying api request",
			zap.String(logging.FieldPath, path),
			zap.Int(logging.FieldAttempt, attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return body, status, err
	}
	return body, status, nil
}

// Get performs a signed GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, _, err := c.do(ctx, http.MethodGet, path, params, nil)
	return body, err
}

// GetJSON performs a signed GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// GetAll fetches every page of a list endpoint using $top/$skip. The result
// is complete or an error is returned. Paging stops at a short page or once
// the reported Count is reached; a server that ignores $skip is an error.
func (c *Client) GetAll(ctx context.Context, path string, params url.Values) ([]Resource, error) {
	var (
		all  []Resource
		prev json.RawMessage
	)
	for skip := 0; ; {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("$top", strconv.Itoa(c.pageSize))
		q.Set("$skip", strconv.Itoa(skip))

		var p page
		if err := c.GetJSON(ctx, path, q, &p); err != nil {
			return nil, err
		}
		if skip > 0 && len(p.Results) > 0 && bytes.Equal(p.Results[0], prev) {
			return nil, fmt.Errorf("listing %s: page at $skip=%d repeats the previous page", path, skip)
		}
		for _, raw := range p.Results {
			var res Resource
			if err := json.Unmarshal(raw, &res); err != nil {
				return nil, fmt.Errorf("parsing %s result: %w", path, err)
			}
			all = append(all, res)
		}
		skip += len(p.Results)
		if len(p.Results) < c.pageSize || (p.Count > 0 && skip >= p.Count) {
			break
		}
		prev = p.Results[0]
	}
	return all, nil
}

// Post performs a signed POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	return c.do(ctx, http.MethodPost, path, nil, payload)
}

// Patch performs a signed PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	return c.do(ctx, http.MethodPatch, path, nil, payload)
}

// FindByName returns the first object at path with the exact name, scoped to
// the organization when orgMoid is set, or nil if there is none.
func (c *Client) FindByName(ctx context.Context, path, name, orgMoid string) (Resource, error) {
	filter := "Name eq " + quote(name)
	if orgMoid != "" {
		filter += " and Organization.Moid eq " + quote(orgMoid)
	}
	params := url.Values{"$filter": {filter}, "$top": {"1"}}
	var p page
	if err := c.GetJSON(ctx, path, params, &p); err != nil {
		return nil, err
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	var res Resource
	if err := json.Unmarshal(p.Results[0], &res); err != nil {
		return nil, fmt.Errorf("parsing %s result: %w", path, err)
	}
	return res, nil
}

// quote renders an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
