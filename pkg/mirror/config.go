package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PortalMirror/portalmirror/internal/auth"
	"github.com/PortalMirror/portalmirror/internal/browser"
	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	portalhttp "github.com/PortalMirror/portalmirror/internal/http"
)

// Environment variables consulted when the config carries no credentials.
const (
	EnvUsername = "PORTAL_USERNAME"
	EnvPassword = "PORTAL_PASSWORD"
)

// Config holds all mirror configuration.
type Config struct {
	// Portal location and content path
	Portal PortalConfig `json:"portal" yaml:"portal"`

	// Directory the mirror is written to
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Start-URL manifest used when ScrapeFrom is given no path
	Manifest string `json:"manifest" yaml:"manifest"`

	// Request timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// User-Agent sent with every request
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Retry policy for pages and assets
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Authentication
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Browser used for form logins
	Browser browser.Config `json:"browser" yaml:"browser"`

	// Run journal
	State StateConfig `json:"state" yaml:"state"`

	// Run report
	Report ReportConfig `json:"report" yaml:"report"`

	// Check the finished mirror for broken links
	ValidateAfter bool `json:"validate" yaml:"validate"`

	// Show a progress spinner
	Progress bool `json:"progress" yaml:"progress"`

	// Custom headers to include in all requests
	CustomHeaders map[string]string `json:"custom_headers" yaml:"custom_headers"`

	// Accept invalid TLS certificates
	SkipTLSVerify bool `json:"skip_tls_verify" yaml:"skip_tls_verify"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// PortalConfig locates the portal content.
type PortalConfig struct {
	Domain          string   `json:"domain" yaml:"domain"`
	ContentPath     string   `json:"content_path" yaml:"content_path"`
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`
}

// RetryConfig configures fetch retries.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffStep time.Duration `json:"backoff_step" yaml:"backoff_step"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
	RespectRobotsTxt  bool    `json:"respect_robots_txt" yaml:"respect_robots_txt"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type          string            `json:"type" yaml:"type"`
	Cookies       map[string]string `json:"cookies" yaml:"cookies"`
	Headers       map[string]string `json:"headers" yaml:"headers"`
	LoginURL      string            `json:"login_url" yaml:"login_url"`
	Username      string            `json:"username" yaml:"username"`
	Password      string            `json:"password" yaml:"password"`
	UsernameField string            `json:"username_field" yaml:"username_field"`
	PasswordField string            `json:"password_field" yaml:"password_field"`
	SubmitButton  string            `json:"submit_button" yaml:"submit_button"`
}

// StateConfig holds run journal configuration.
type StateConfig struct {
	FilePath string `json:"file_path" yaml:"file_path"`
}

// ReportConfig holds report configuration.
type ReportConfig struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	Format   string `json:"format" yaml:"format"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			Domain:      "https://bid3.afry.com",
			ContentPath: "/pages/",
		},
		OutputDir: "html",
		Manifest:  "manual_urls.json",
		Timeout:   15 * time.Second,
		UserAgent: portalhttp.DefaultUserAgent,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffStep: 500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Auth: AuthConfig{
			Type: string(auth.AuthTypeNone),
		},
		Browser: browser.DefaultConfig(),
		Report: ReportConfig{
			Pretty: true,
		},
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, crawlerrors.NewConfigError(path, "failed to read config file", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if err := json.Unmarshal(data, config); err != nil {
			return nil, crawlerrors.NewConfigError(path, "failed to parse config file", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv fills missing credentials from the environment.
func (c *Config) ApplyEnv() {
	if c.Auth.Username == "" {
		c.Auth.Username = os.Getenv(EnvUsername)
	}
	if c.Auth.Password == "" {
		c.Auth.Password = os.Getenv(EnvPassword)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portal.Domain == "" {
		return crawlerrors.NewConfigError("config", "portal domain is required", nil)
	}

	if c.OutputDir == "" {
		return crawlerrors.NewConfigError("config", "output directory is required", nil)
	}

	if c.Timeout <= 0 {
		return crawlerrors.NewConfigError("config", "timeout must be positive", nil)
	}

	if c.Retry.MaxAttempts < 1 {
		return crawlerrors.NewConfigError("config", "retry attempts must be at least 1", nil)
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return crawlerrors.NewConfigError("config", "rate limit must not be negative", nil)
	}

	switch auth.AuthType(c.Auth.Type) {
	case "", auth.AuthTypeNone, auth.AuthTypeSession, auth.AuthTypeBasic, auth.AuthTypeBrowser:
	default:
		return crawlerrors.NewConfigError("config", fmt.Sprintf("unknown auth type %q", c.Auth.Type), nil)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	_ = json.Unmarshal(data, clone)
	return clone
}
