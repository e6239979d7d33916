package ratelimit

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsManager fetches robots.txt once per host and answers path checks.
type RobotsManager struct {
	mu        sync.Mutex
	client    *http.Client
	userAgent string
	groups    map[string]*robotstxt.Group
}

// NewRobotsManager creates a manager that fetches with client and matches
// rules for userAgent.
func NewRobotsManager(client *http.Client, userAgent string) *RobotsManager {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsManager{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be fetched. Hosts whose robots.txt
// cannot be retrieved or parsed allow everything.
func (m *RobotsManager) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	group := m.group(ctx, u)
	if group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay for the host of rawURL, or 0.
func (m *RobotsManager) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0
	}
	group := m.group(ctx, u)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (m *RobotsManager) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	m.mu.Lock()
	defer m.mu.Unlock()

	if group, ok := m.groups[key]; ok {
		return group
	}

	group := m.fetch(ctx, key+"/robots.txt")
	m.groups[key] = group
	return group
}

func (m *RobotsManager) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(m.userAgent)
}
