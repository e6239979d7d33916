package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

// SessionAuth installs pre-obtained cookies and headers.
type SessionAuth struct {
	mu            sync.RWMutex
	portalURL     string
	cookies       []*http.Cookie
	headers       map[string]string
	authenticated bool
}

// NewSessionAuth creates a new session authentication provider.
func NewSessionAuth(portalURL string, cookies []*http.Cookie, headers map[string]string) *SessionAuth {
	return &SessionAuth{
		portalURL: portalURL,
		cookies:   cookies,
		headers:   headers,
	}
}

// Authenticate copies the cookies into the session jar for the portal host.
func (s *SessionAuth) Authenticate(ctx context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cookies) > 0 {
		if err := session.SetCookies(s.portalURL, s.cookies); err != nil {
			return crawlerrors.NewAuthError(s.portalURL, "could not install session cookies", err)
		}
	}
	if len(s.headers) > 0 {
		session.AddHeaders(s.headers)
	}

	s.authenticated = true
	return nil
}

// GetCookies returns the session cookies.
func (s *SessionAuth) GetCookies() []*http.Cookie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*http.Cookie, len(s.cookies))
	copy(result, s.cookies)
	return result
}

// AddCookie adds a cookie, replacing one with the same name and domain.
func (s *SessionAuth) AddCookie(cookie *http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.cookies {
		if c.Name == cookie.Name && c.Domain == cookie.Domain {
			s.cookies[i] = cookie
			return
		}
	}
	s.cookies = append(s.cookies, cookie)
}

// IsAuthenticated returns true after Authenticate.
func (s *SessionAuth) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Type returns the authentication type.
func (s *SessionAuth) Type() AuthType {
	return AuthTypeSession
}

// BasicAuth provides HTTP Basic authentication.
type BasicAuth struct {
	username string
	password string
}

// NewBasicAuth creates a new Basic authentication provider.
func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{
		username: username,
		password: password,
	}
}

// Authenticate adds the Authorization header to the session.
func (b *BasicAuth) Authenticate(ctx context.Context, session Session) error {
	if h := b.header(); h != "" {
		session.AddHeaders(map[string]string{"Authorization": h})
	}
	return nil
}

func (b *BasicAuth) header() string {
	if b.username == "" && b.password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(b.username+":"+b.password))
}

// IsAuthenticated returns true if credentials are set.
func (b *BasicAuth) IsAuthenticated() bool {
	return b.username != "" || b.password != ""
}

// Type returns the authentication type.
func (b *BasicAuth) Type() AuthType {
	return AuthTypeBasic
}
