package ofga

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/samber/lo"
	"golang.org/x/net/http2"
)

var (
	// ErrMissingStoreID is returned when no store id was passed, configured
	// or previously loaded into the shared [Defaults].
	ErrMissingStoreID = errors.New("store id must be provided")
	// ErrMissingModelID is the model-id counterpart of [ErrMissingStoreID].
	ErrMissingModelID = errors.New("authorization model id must be provided")
	// ErrNoModel is returned when a store holds no authorization model yet.
	ErrNoModel = errors.New("no authorization model found in store")
	// ErrAmbiguousStore is returned when more than one store matches a name.
	ErrAmbiguousStore = errors.New("multiple stores match name")
)

// StatusError is returned for any non-2xx response. The raw response body is
// carried along, as the service reports the failure details as JSON.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ofga: %s %s failed with status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

type Option interface {
	do(*clientConfig)
}

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	defaults   *Defaults
	storeID    string
	modelID    string
}

type optionFunc func(*clientConfig)

func (fn optionFunc) do(c *clientConfig) {
	fn(c)
}

// WithHTTPClient uses a caller-provided transport instead of the default.
func WithHTTPClient(httpClient *http.Client) Option {
	return optionFunc(func(c *clientConfig) { c.httpClient = httpClient })
}

// WithRetries enables transport-level retries for transient failures.
// The client itself never retries: a retried request may re-apply batches
// that already committed, so only idempotent-safe calls should use this.
func WithRetries(max int) Option {
	return optionFunc(func(c *clientConfig) {
		rc := retryablehttp.NewClient()
		rc.RetryMax = max
		rc.Logger = nil
		c.httpClient = rc.StandardClient()
	})
}

// WithH2C talks prior-knowledge HTTP/2 over cleartext, for services exposed
// the same way zanzibar-style servers usually are behind h2c.
func WithH2C() Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		}
	})
}

// WithLogger enables debug-level request logging.
func WithLogger(log *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) { c.logger = log })
}

// WithDefaults shares a [Defaults] between clients, so identifiers loaded by
// one client are visible to all others holding the same object.
func WithDefaults(d *Defaults) Option {
	return optionFunc(func(c *clientConfig) { c.defaults = d })
}

// WithStoreID fixes the store this client operates on.
func WithStoreID(id string) Option {
	return optionFunc(func(c *clientConfig) { c.storeID = id })
}

// WithModelID fixes the authorization model this client queries against.
func WithModelID(id string) Option {
	return optionFunc(func(c *clientConfig) { c.modelID = id })
}

// Client talks to an OpenFGA-compatible service over HTTP. A single Client
// is safe for concurrent use; the underlying [http.Client] pools connections.
type Client struct {
	http     *http.Client
	baseURL  string
	log      *slog.Logger
	defaults *Defaults
	storeID  string
	modelID  string
}

// NewClient creates a client bound to apiURL, e.g. "http://localhost:8080".
func NewClient(apiURL string, options ...Option) (*Client, error) {
	if apiURL == "" {
		return nil, errors.New("api url must be provided")
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	cfg := clientConfig{}
	lo.ForEach(options, func(o Option, _ int) { o.do(&cfg) })
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(discardHandler{})
	}
	if cfg.defaults == nil {
		cfg.defaults = &Defaults{}
	}
	return &Client{
		http:     cfg.httpClient,
		baseURL:  strings.TrimRight(u.String(), "/"),
		log:      cfg.logger,
		defaults: cfg.defaults,
		storeID:  cfg.storeID,
		modelID:  cfg.modelID,
	}, nil
}

// Defaults returns the identifier cache this client resolves against.
func (c *Client) Defaults() *Defaults {
	return c.defaults
}

// LoadDefaults resolves the named store (creating it if absent) and its
// latest authorization model into the client's [Defaults], so subsequent
// calls need no explicit identifiers.
func (c *Client) LoadDefaults(ctx context.Context, storeName string) error {
	return c.defaults.Refresh(ctx, c, storeName)
}

func (c *Client) resolveStoreID(storeID string) (string, error) {
	if storeID != "" {
		return storeID, nil
	}
	if c.storeID != "" {
		return c.storeID, nil
	}
	if id := c.defaults.StoreID(); id != "" {
		return id, nil
	}
	return "", ErrMissingStoreID
}

func (c *Client) resolveModelID(modelID string) (string, error) {
	if modelID != "" {
		return modelID, nil
	}
	if c.modelID != "" {
		return c.modelID, nil
	}
	if id := c.defaults.ModelID(); id != "" {
		return id, nil
	}
	return "", ErrMissingModelID
}

// doRaw issues a single request and returns the response body.
// Any non-2xx status is reported as a [StatusError].
func (c *Client) doRaw(ctx context.Context, method, endpoint string, params url.Values, body any) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s request: %w", method, endpoint, err)
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s response: %w", method, endpoint, err)
	}
	c.log.Debug("request completed",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body, out any) error {
	data, err := c.doRaw(ctx, method, endpoint, params, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, endpoint, err)
	}
	return nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
