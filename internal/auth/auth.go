// Package auth establishes the portal session before crawling.
package auth

import (
	"context"
	"net/http"
	"strings"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

// AuthType represents the type of authentication.
type AuthType string

const (
	AuthTypeNone    AuthType = "none"
	AuthTypeSession AuthType = "session"
	AuthTypeBrowser AuthType = "browser"
	AuthTypeBasic   AuthType = "basic"
)

// DefaultLoginPath is the portal's login form, relative to the domain.
const DefaultLoginPath = "/other/cloudlogin.html"

// Default form field names on the portal login page.
const (
	DefaultUsernameField = "name"
	DefaultPasswordField = "pwd"
	DefaultSubmitButton  = "portletlogin"
)

// Credentials holds authentication credentials.
type Credentials struct {
	Type          AuthType
	PortalURL     string // scheme://host the session cookies belong to
	LoginURL      string
	Username      string
	Password      string
	UsernameField string
	PasswordField string
	SubmitButton  string
	Headers       map[string]string
	Cookies       []*http.Cookie
}

// Session is the HTTP session a provider authenticates.
type Session interface {
	SetCookies(rawURL string, cookies []*http.Cookie) error
	AddHeaders(headers map[string]string)
}

// Provider defines the interface for authentication providers.
type Provider interface {
	// Authenticate logs in and installs credentials on session.
	Authenticate(ctx context.Context, session Session) error

	// IsAuthenticated returns true once Authenticate succeeded.
	IsAuthenticated() bool

	// Type returns the authentication type.
	Type() AuthType
}

// NewProvider creates an authentication provider based on credentials.
// launch is only used for browser logins; nil selects a default headless
// Chrome.
func NewProvider(creds Credentials, launch LaunchFunc) (Provider, error) {
	switch creds.Type {
	case "", AuthTypeNone:
		return &NoAuth{}, nil
	case AuthTypeSession:
		return NewSessionAuth(creds.PortalURL, creds.Cookies, creds.Headers), nil
	case AuthTypeBasic:
		return NewBasicAuth(creds.Username, creds.Password), nil
	case AuthTypeBrowser:
		if creds.Username == "" || creds.Password == "" {
			return nil, crawlerrors.NewConfigError("auth", "browser login requires username and password", nil)
		}
		return NewBrowserAuth(creds, launch), nil
	default:
		return nil, crawlerrors.NewConfigError("auth", "unknown auth type "+string(creds.Type), nil)
	}
}

// LoginFailed reports whether a post-login URL still points at the login
// form or an error page.
func LoginFailed(finalURL string) bool {
	u := strings.ToLower(finalURL)
	return strings.Contains(u, "login") || strings.Contains(u, "error")
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (n *NoAuth) Authenticate(ctx context.Context, session Session) error {
	return nil
}

func (n *NoAuth) IsAuthenticated() bool {
	return true
}

func (n *NoAuth) Type() AuthType {
	return AuthTypeNone
}
