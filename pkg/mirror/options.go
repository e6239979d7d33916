package mirror

import (
	"io"
	"time"

	"github.com/PortalMirror/portalmirror/internal/auth"
	portalhttp "github.com/PortalMirror/portalmirror/internal/http"
	"github.com/PortalMirror/portalmirror/internal/logger"
	"github.com/PortalMirror/portalmirror/internal/state"
)

// Option is a functional option for configuring the Mirror.
type Option func(*Mirror) error

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(config *Config) Option {
	return func(m *Mirror) error {
		if config != nil {
			m.config = config.Clone()
		}
		return nil
	}
}

// WithPortal sets the portal domain and content path.
func WithPortal(domain, contentPath string) Option {
	return func(m *Mirror) error {
		m.config.Portal.Domain = domain
		m.config.Portal.ContentPath = contentPath
		return nil
	}
}

// WithExcludePatterns adds regular expressions for URLs never to crawl.
func WithExcludePatterns(patterns ...string) Option {
	return func(m *Mirror) error {
		m.config.Portal.ExcludePatterns = append(m.config.Portal.ExcludePatterns, patterns...)
		return nil
	}
}

// WithOutputDir sets the mirror root.
func WithOutputDir(dir string) Option {
	return func(m *Mirror) error {
		m.config.OutputDir = dir
		return nil
	}
}

// WithManifest sets the default start-URL manifest.
func WithManifest(path string) Option {
	return func(m *Mirror) error {
		m.config.Manifest = path
		return nil
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Mirror) error {
		m.config.Timeout = timeout
		return nil
	}
}

// WithRetry sets the retry policy.
func WithRetry(attempts int, step time.Duration) Option {
	return func(m *Mirror) error {
		if attempts < 1 {
			attempts = 1
		}
		m.config.Retry = RetryConfig{MaxAttempts: attempts, BackoffStep: step}
		return nil
	}
}

// WithRateLimit sets the rate limiting configuration.
func WithRateLimit(rps float64, burst int) Option {
	return func(m *Mirror) error {
		m.config.RateLimit.RequestsPerSecond = rps
		m.config.RateLimit.Burst = burst
		return nil
	}
}

// WithRespectRobotsTxt enables/disables robots.txt respect.
func WithRespectRobotsTxt(respect bool) Option {
	return func(m *Mirror) error {
		m.config.RateLimit.RespectRobotsTxt = respect
		return nil
	}
}

// WithUserAgent sets the user agent string.
func WithUserAgent(ua string) Option {
	return func(m *Mirror) error {
		m.config.UserAgent = ua
		return nil
	}
}

// WithHeaders sets custom headers.
func WithHeaders(headers map[string]string) Option {
	return func(m *Mirror) error {
		if m.config.CustomHeaders == nil {
			m.config.CustomHeaders = make(map[string]string)
		}
		for k, v := range headers {
			m.config.CustomHeaders[k] = v
		}
		return nil
	}
}

// WithCookies authenticates with pre-obtained session cookies.
func WithCookies(cookies map[string]string) Option {
	return func(m *Mirror) error {
		m.config.Auth.Type = string(auth.AuthTypeSession)
		if m.config.Auth.Cookies == nil {
			m.config.Auth.Cookies = make(map[string]string)
		}
		for k, v := range cookies {
			m.config.Auth.Cookies[k] = v
		}
		return nil
	}
}

// WithBrowserLogin authenticates through the portal login form.
func WithBrowserLogin(username, password string) Option {
	return func(m *Mirror) error {
		m.config.Auth.Type = string(auth.AuthTypeBrowser)
		m.config.Auth.Username = username
		m.config.Auth.Password = password
		return nil
	}
}

// WithAuthProvider sets a custom authentication provider.
func WithAuthProvider(provider auth.Provider) Option {
	return func(m *Mirror) error {
		m.auth = provider
		return nil
	}
}

// WithHTTPClient uses client as the shared session instead of building one.
func WithHTTPClient(client *portalhttp.Client) Option {
	return func(m *Mirror) error {
		m.client = client
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Mirror) error {
		m.logger = l
		return nil
	}
}

// WithStore sets the run journal store.
func WithStore(store state.Store) Option {
	return func(m *Mirror) error {
		m.store = store
		return nil
	}
}

// WithStatePath journals runs to a bbolt file.
func WithStatePath(path string) Option {
	return func(m *Mirror) error {
		m.config.State.FilePath = path
		return nil
	}
}

// WithReport writes a run report to path.
func WithReport(path string, pretty bool) Option {
	return func(m *Mirror) error {
		m.config.Report.FilePath = path
		m.config.Report.Pretty = pretty
		return nil
	}
}

// WithValidate enables the post-run link check.
func WithValidate(enabled bool) Option {
	return func(m *Mirror) error {
		m.config.ValidateAfter = enabled
		return nil
	}
}

// WithProgress shows a spinner on w.
func WithProgress(w io.Writer) Option {
	return func(m *Mirror) error {
		m.config.Progress = true
		m.progressOut = w
		return nil
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(m *Mirror) error {
		m.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(m *Mirror) error {
		m.config.Debug = debug
		return nil
	}
}
