// Package client is a Go client for the LeafNet prediction API.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/httpclient"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Prediction is the result of a remote prediction.
type Prediction struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

// Status is the body of the server liveness route.
type Status struct {
	Message string `json:"message"`
}

// APIError is returned for non-2xx responses. Message holds the server's
// error text, e.g. "DecodeError: invalid base64 payload".
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Kind returns the error kind prefix of the server message, or "" when the
// message has none.
func (e *APIError) Kind() errors.Kind {
	kind, _, ok := strings.Cut(e.Message, ": ")
	if !ok {
		return ""
	}
	switch k := errors.Kind(kind); k {
	case errors.KindValidation, errors.KindDecode, errors.KindShape, errors.KindInference, errors.KindInternal:
		return k
	}
	return ""
}

// Client talks to one LeafNet server.
type Client struct {
	baseURL *url.URL
	http    *httpclient.Client
}

// Option configures a Client.
type Option func(*httpclient.Config)

// WithTimeout sets the deadline applied to calls whose context has none.
func WithTimeout(d time.Duration) Option {
	return func(c *httpclient.Config) { c.DefaultTimeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpclient.Config) { c.UserAgent = ua }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *httpclient.Config) { c.Transport = rt }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid server URL %q", baseURL).
			Component("client").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("unsupported server URL scheme %q", u.Scheme).
			Component("client").
			Category(errors.CategoryConfiguration).
			Build()
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	cfg := httpclient.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{baseURL: u, http: httpclient.New(&cfg)}
	c.http.SetAfterResponseHook(logResponse)
	return c, nil
}

// Predict sends image (raw encoded image bytes) to the slot's predict route.
func (c *Client) Predict(ctx context.Context, slot string, image []byte) (Prediction, error) {
	return c.PredictBase64(ctx, slot, base64.StdEncoding.EncodeToString(image))
}

// PredictBase64 sends an already base64-encoded image.
func (c *Client) PredictBase64(ctx context.Context, slot, payload string) (Prediction, error) {
	var p Prediction
	if slot == "" || strings.ContainsAny(slot, "/?#") {
		return p, errors.Newf("invalid slot name %q", slot).
			Component("client").
			Category(errors.CategoryValidation).
			Build()
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("predict", slot), map[string]string{"image": payload})
	if err != nil {
		return p, requestFailed(err, slot)
	}
	err = decodeResponse(resp, &p)
	return p, err
}

// Status calls the liveness route.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	resp, err := c.http.Get(ctx, c.endpoint())
	if err != nil {
		return s, requestFailed(err, "")
	}
	err = decodeResponse(resp, &s)
	return s, err
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.Join(segments, "/")
	return u.String()
}

func requestFailed(err error, slot string) error {
	b := errors.New(fmt.Errorf("request failed: %w", err)).
		Component("client").
		Category(errors.CategoryNetwork)
	if slot != "" {
		b = b.Context("slot", slot)
	}
	return b.Build()
}

// decodeResponse decodes a 2xx body into v or turns an error body into *APIError.
func decodeResponse(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.New(fmt.Errorf("read response: %w", err)).
			Component("client").
			Category(errors.CategoryNetwork).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.New(fmt.Errorf("malformed response body: %w", err)).
			Component("client").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

func logResponse(req *http.Request, resp *http.Response, err error) {
	log := GetLogger()
	if err != nil {
		log.Debug("request failed",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Error(err))
		return
	}
	log.Debug("response received",
		logger.String("method", req.Method),
		logger.String("path", req.URL.Path),
		logger.Int("status", resp.StatusCode))
}
