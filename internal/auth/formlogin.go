package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PortalMirror/portalmirror/internal/browser"
	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

// Loginer submits a login form in a browser.
type Loginer interface {
	Login(ctx context.Context, form browser.LoginForm) (*browser.LoginResult, error)
	Close() error
}

// LaunchFunc starts a browser for one login.
type LaunchFunc func() (Loginer, error)

// BrowserLauncher returns a LaunchFunc backed by headless Chrome.
func BrowserLauncher(config browser.Config) LaunchFunc {
	return func() (Loginer, error) {
		return browser.New(config)
	}
}

// BrowserAuth logs in through the portal's HTML form in a real browser and
// exports the resulting cookies to the HTTP session.
type BrowserAuth struct {
	mu            sync.RWMutex
	creds         Credentials
	launch        LaunchFunc
	settle        time.Duration
	authenticated bool
	lastLogin     time.Time
	finalURL      string
}

// NewBrowserAuth creates a browser login provider. Empty form fields fall
// back to the portal defaults.
func NewBrowserAuth(creds Credentials, launch LaunchFunc) *BrowserAuth {
	if creds.LoginURL == "" {
		creds.LoginURL = strings.TrimRight(creds.PortalURL, "/") + DefaultLoginPath
	}
	if creds.UsernameField == "" {
		creds.UsernameField = DefaultUsernameField
	}
	if creds.PasswordField == "" {
		creds.PasswordField = DefaultPasswordField
	}
	if creds.SubmitButton == "" {
		creds.SubmitButton = DefaultSubmitButton
	}
	if launch == nil {
		launch = BrowserLauncher(browser.DefaultConfig())
	}

	return &BrowserAuth{
		creds:  creds,
		launch: launch,
		settle: 2 * time.Second,
	}
}

// SetSettle sets how long to wait after submitting the form.
func (f *BrowserAuth) SetSettle(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settle = d
}

// LoginURL returns the login form address.
func (f *BrowserAuth) LoginURL() string {
	return f.creds.LoginURL
}

// Authenticate performs the form login and copies the browser cookies into
// session.
func (f *BrowserAuth) Authenticate(ctx context.Context, session Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.launch()
	if err != nil {
		return crawlerrors.NewAuthError(f.creds.LoginURL, "could not start browser", err)
	}
	defer b.Close()

	result, err := b.Login(ctx, browser.LoginForm{
		URL:           f.creds.LoginURL,
		Username:      f.creds.Username,
		Password:      f.creds.Password,
		UsernameField: f.creds.UsernameField,
		PasswordField: f.creds.PasswordField,
		SubmitButton:  f.creds.SubmitButton,
		Headers:       f.creds.Headers,
		Settle:        f.settle,
	})
	if err != nil {
		if ctx.Err() != nil {
			return crawlerrors.NewCancelledError(f.creds.LoginURL, "login")
		}
		return crawlerrors.NewAuthError(f.creds.LoginURL, "form login failed", err)
	}

	f.finalURL = result.FinalURL
	if LoginFailed(result.FinalURL) {
		return crawlerrors.NewAuthError(f.creds.LoginURL, "still on login or error page: "+result.FinalURL, nil)
	}

	if err := session.SetCookies(f.creds.PortalURL, result.Cookies); err != nil {
		return crawlerrors.NewAuthError(f.creds.PortalURL, "could not install session cookies", err)
	}

	f.authenticated = true
	f.lastLogin = time.Now()
	return nil
}

// FinalURL returns the page the browser landed on after the last attempt.
func (f *BrowserAuth) FinalURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.finalURL
}

// IsAuthenticated returns true after a successful login.
func (f *BrowserAuth) IsAuthenticated() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.authenticated
}

// Type returns the authentication type.
func (f *BrowserAuth) Type() AuthType {
	return AuthTypeBrowser
}
