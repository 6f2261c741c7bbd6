package client

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
	"strings"
	"time"
)

// APIError is a non-2xx response from the engine.
type APIError struct {
	StatusCode int
	Message    string
	// ActedBy names the operator who won a conflicting transition, if known.
	ActedBy string
	// CurrentStatus is the transfer's posting status reported with a conflict.
	CurrentStatus string
	// ReconciliationRequired is set on partial postings.
	ReconciliationRequired bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("posting engine returned HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is a 409 APIError.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client is the posting engine SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
	actor       string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an operator session token to every request. The
// engine records the token subject as the acting operator.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithActor sets the actor sent in lifecycle request bodies. It is ignored by
// the server when a bearer token is configured.
func WithActor(actor string) Option {
	return func(c *Client) error {
		c.actor = actor
		return nil
	}
}

// WithCACert trusts the given PEM-encoded CA for TLS connections.
func WithCACert(caPEM string) Option {
	return func(c *Client) error {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return fmt.Errorf("failed to parse CA certificate PEM")
		}
		c.httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{
				RootCAs:    pool,
				MinVersion: tls.VersionTLS12,
			}},
			Timeout: 10 * time.Second,
		}
		return nil
	}
}

// New creates a new Client connected to base.
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// doJSON sends reqBody (if non-nil) and decodes a 2xx response into respBody
// (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error                  string `json:"error"`
		ActedBy                string `json:"acted_by"`
		CurrentStatus          string `json:"current_status"`
		ReconciliationRequired bool   `json:"reconciliation_required"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.ActedBy = body.ActedBy
		apiErr.CurrentStatus = body.CurrentStatus
		apiErr.ReconciliationRequired = body.ReconciliationRequired
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
