package r2r

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is read for the error detail.
const maxErrorBody = 64 << 10

// Client is a handle to one R2R deployment. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	apiKey    string
	userAgent string
	obs       *observer
}

// Connect validates baseURL and checks that the service accepts connections.
// It does not retry. Failures wrap ErrConnection.
func Connect(ctx context.Context, baseURL string, opts ...Option) (c *Client, err error) {
	start := time.Now()

	cfg := &clientConfig{
		connectTimeout: defaultConnectTimeout,
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	defer func() { obs.observe("connect", start, err) }()

	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	// Behind a proxy the service host is usually not directly reachable;
	// the first API call surfaces connection problems instead.
	if !proxied(u) {
		if err := dial(ctx, u, cfg.connectTimeout); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
	}

	return &Client{
		baseURL:   u,
		http:      buildHTTPClient(cfg),
		limiter:   buildLimiter(cfg),
		apiKey:    cfg.apiKey,
		userAgent: cfg.userAgent,
		obs:       obs,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", raw)
	}
	return u, nil
}

// dial opens and closes a TCP connection to the service host.
func dial(ctx context.Context, u *url.URL, timeout time.Duration) error {
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}
	_ = conn.Close()
	return nil
}

// proxied reports whether HTTP(S)_PROXY / NO_PROXY route requests for u through a proxy.
func proxied(u *url.URL) bool {
	p, err := httpproxy.FromEnvironment().ProxyFunc()(u)
	return err == nil && p != nil
}

func buildHTTPClient(cfg *clientConfig) *http.Client {
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.requestTimeout}
	}
	if cfg.tracing {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		traced := *hc
		traced.Transport = otelhttp.NewTransport(base)
		hc = &traced
	}
	return hc
}

func buildLimiter(cfg *clientConfig) *rate.Limiter {
	if cfg.rateLimit <= 0 {
		return nil
	}
	burst := cfg.rateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.rateLimit), burst)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// BaseURL returns the service address the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Health checks service liveness. Failures wrap ErrService.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	var raw json.RawMessage
	if err = c.doJSON(ctx, http.MethodGet, "/v3/health", nil, nil, &raw); err != nil {
		return HealthStatus{}, fmt.Errorf("health: %w: %w", ErrService, err)
	}

	var env envelope[healthWire]
	_ = json.Unmarshal(raw, &env)
	return HealthStatus{Message: env.Results.Message, Raw: raw}, nil
}

// Documents returns the document management service.
func (c *Client) Documents() *DocumentService {
	return &DocumentService{c: c}
}

// Retrieval returns the search and RAG service.
func (c *Client) Retrieval() *RetrievalService {
	return &RetrievalService{c: c}
}

// doJSON sends an optional JSON body and decodes the JSON response into out.
func (c *Client) doJSON(
	ctx context.Context, method, path string, query url.Values, in, out any,
) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, body, contentType, out)
}

func (c *Client) do(
	ctx context.Context, method, path string, query url.Values,
	body io.Reader, contentType string, out any,
) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseAPIError(resp.StatusCode, b)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
