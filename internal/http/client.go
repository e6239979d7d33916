// Package http fetches portal pages and assets over one authenticated session.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/logger"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/ratelimit"
)

// DefaultUserAgent mimics a desktop Chrome so the portal serves regular pages.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// Config holds configuration for the session client.
type Config struct {
	Timeout       time.Duration
	UserAgent     string
	Headers       map[string]string
	Retry         errors.RetryConfig
	SkipTLSVerify bool
}

// DefaultConfig returns the defaults used against the portal.
func DefaultConfig() Config {
	return Config{
		Timeout:   15 * time.Second,
		UserAgent: DefaultUserAgent,
		Retry:     errors.DefaultRetryConfig(),
	}
}

// Client is the shared HTTP session: cookies, headers, pacing and retries.
// Requests are issued one at a time by the crawl loop but the client is safe
// for concurrent use.
type Client struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	retrier   *errors.Retrier
	limiter   *ratelimit.Limiter
	robots    *ratelimit.RobotsManager
	metrics   *metrics.Collector
	log       *logger.Logger
	mu        sync.RWMutex
}

// Result is the outcome of a fetch or download.
type Result struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Bytes       int64
	Attempts    int
	Duration    time.Duration
}

// NewClient creates a session client with an empty cookie jar.
func NewClient(config Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	// cookiejar.New only fails on a bad PublicSuffixList; none is given.
	jar, _ := cookiejar.New(nil)

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		headers:   config.Headers,
		retrier:   errors.NewRetrier(config.Retry),
		log:       logger.Nop(),
	}
}

// SetCookies stores cookies for rawURL's host in the session jar.
func (c *Client) SetCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.NewParseError(rawURL, "set_cookies", err)
	}
	c.client.Jar.SetCookies(u, cookies)
	return nil
}

// Cookies returns the cookies the session would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.client.Jar.Cookies(u)
}

// SetHeaders sets custom headers for all requests.
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	c.headers = headers
	c.mu.Unlock()
}

// AddHeaders merges headers into the custom header set.
func (c *Client) AddHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := make(map[string]string, len(c.headers)+len(headers))
	for k, v := range c.headers {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}
	c.headers = merged
}

// SetLimiter paces every attempt through l.
func (c *Client) SetLimiter(l *ratelimit.Limiter) {
	c.limiter = l
}

// SetRobots makes the client refuse URLs that robots.txt disallows.
func (c *Client) SetRobots(r *ratelimit.RobotsManager) {
	c.robots = r
}

// SetMetrics records request counters into m.
func (c *Client) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

// SetLogger sets the logger used for request events.
func (c *Client) SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.Nop()
	}
	c.log = l
}

// SetRetryConfig replaces the retry policy.
func (c *Client) SetRetryConfig(config errors.RetryConfig) {
	c.retrier = errors.NewRetrier(config)
}

// HTTPClient exposes the underlying client, sharing the cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Get fetches targetURL and returns its body. Non-2xx responses and transport
// failures are retried; the final failure is returned as a typed error.
func (c *Client) Get(ctx context.Context, targetURL string) (*Result, error) {
	result := &Result{URL: targetURL}

	err := c.withRetry(ctx, "get", targetURL, result, func(resp *http.Response) error {
		var buf bytes.Buffer
		n, err := io.Copy(&buf, resp.Body)
		if err != nil {
			return errors.NewNetworkError(targetURL, "body_read", err)
		}
		result.Body = buf.Bytes()
		result.Bytes = n
		return nil
	})

	return result, err
}

// Download fetches targetURL and writes the bytes verbatim to dest, creating
// parent directories as needed. dest is replaced only by a complete body.
func (c *Client) Download(ctx context.Context, targetURL, dest string) (*Result, error) {
	result := &Result{URL: targetURL}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return result, errors.NewIOError(dest, "mkdir", err)
	}

	err := c.withRetry(ctx, "download", targetURL, result, func(resp *http.Response) error {
		n, err := writeFile(dest, resp.Body)
		if err != nil {
			return err
		}
		result.Bytes = n
		return nil
	})

	return result, err
}

// withRetry runs one request per attempt and hands 2xx bodies to consume.
func (c *Client) withRetry(ctx context.Context, op, targetURL string, result *Result, consume func(*http.Response) error) error {
	if c.robots != nil && !c.robots.Allowed(ctx, targetURL) {
		return errors.NewScopeError(targetURL, "disallowed by robots.txt")
	}

	attempt := 0
	retry := c.retrier.Do(ctx, op, targetURL, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && c.metrics != nil {
			c.metrics.RecordRetry()
		}
		return c.do(ctx, targetURL, result, consume)
	})

	result.Attempts = retry.Attempts
	result.Duration = retry.Duration

	if retry.Success {
		c.log.RequestEvent(targetURL, result.StatusCode, result.Attempts, result.Duration)
		return nil
	}

	crawlErr := errors.Categorize(retry.LastError, targetURL)
	crawlErr.Attempts = retry.Attempts
	if c.metrics != nil {
		c.metrics.RecordError(crawlErr.Type.String())
	}
	return crawlErr
}

func (c *Client) do(ctx context.Context, targetURL string, result *Result, consume func(*http.Response) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.NewCancelledError(targetURL, "rate_limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return errors.NewParseError(targetURL, "request_creation", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.RUnlock()

	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordRequest()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")

	if c.metrics != nil {
		c.metrics.RecordStatusCode(resp.StatusCode)
		c.metrics.RecordResponseTime(time.Since(start))
	}

	if statusErr := errors.CategorizeHTTPStatus(resp.StatusCode, targetURL); statusErr != nil {
		io.Copy(io.Discard, resp.Body)
		return statusErr
	}

	if err := consume(resp); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordBytes(result.Bytes)
	}
	return nil
}

// writeFile streams r into a temporary sibling of dest and renames it into place.
func writeFile(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, errors.NewIOError(dest, "create", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, errors.NewNetworkError(dest, "body_read", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return n, errors.NewIOError(dest, "chmod", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, errors.NewIOError(dest, "close", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return n, errors.NewIOError(dest, "rename", err)
	}
	return n, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
