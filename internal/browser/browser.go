// Package browser provides headless Chrome integration via Rod.
package browser

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	Bin               string        `json:"bin" yaml:"bin"` // Chrome binary; empty downloads or finds one
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Timeout:  60 * time.Second,
	}
}

// Browser wraps a Rod browser instance.
type Browser struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	config    Config
	mu        sync.Mutex
	pageCount int
}

// New launches Chrome and connects to it.
func New(config Config) (*Browser, error) {
	l := launcher.New().Headless(config.Headless)

	if config.Bin != "" {
		l = l.Bin(config.Bin)
	}
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if config.Timeout > 0 {
		browser = browser.Timeout(config.Timeout)
	}

	return &Browser{
		browser:  browser,
		launcher: l,
		config:   config,
	}, nil
}

// newPage opens a blank tab with the configured user agent, extra headers and
// cookies applied.
func (b *Browser) newPage(headers map[string]string, cookies []*http.Cookie) (*rod.Page, error) {
	b.mu.Lock()
	b.pageCount++
	b.mu.Unlock()

	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if b.config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: b.config.UserAgent}.Call(page)
	}

	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders(headers)}.Call(page)
	}

	if len(cookies) > 0 {
		_ = page.SetCookies(cookieParams(cookies))
	}

	return page, nil
}

// Close closes the browser and stops the launched process.
func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return err
}

// PageCount returns the number of pages opened.
func (b *Browser) PageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pageCount
}

// GetConfig returns the browser configuration.
func (b *Browser) GetConfig() Config {
	return b.config
}

func networkHeaders(headers map[string]string) proto.NetworkHeaders {
	out := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		out[k] = gson.New(v)
	}
	return out
}

func cookieParams(cookies []*http.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return params
}

// httpCookies converts browser cookies for use in an HTTP cookie jar.
func httpCookies(cookies []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}
