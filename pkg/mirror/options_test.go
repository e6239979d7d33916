package mirror

import (
	"bytes"
	"testing"
	"time"

	"github.com/PortalMirror/portalmirror/internal/auth"
	"github.com/PortalMirror/portalmirror/internal/logger"
	"github.com/PortalMirror/portalmirror/internal/state"
)

// Helper to create a minimal mirror for option testing
func newOptionMirror() *Mirror {
	return &Mirror{
		config: DefaultConfig(),
	}
}

func apply(t *testing.T, m *Mirror, opts ...Option) {
	t.Helper()
	for _, opt := range opts {
		if err := opt(m); err != nil {
			t.Fatalf("option error = %v", err)
		}
	}
}

func TestWithPortal(t *testing.T) {
	m := newOptionMirror()
	apply(t, m, WithPortal("https://portal.example.com", "/docs/"), WithExcludePatterns("a", "b"))

	if m.config.Portal.Domain != "https://portal.example.com" || m.config.Portal.ContentPath != "/docs/" {
		t.Errorf("Portal = %+v", m.config.Portal)
	}
	if len(m.config.Portal.ExcludePatterns) != 2 {
		t.Errorf("ExcludePatterns = %v", m.config.Portal.ExcludePatterns)
	}
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		attempts int
		want     int
	}{
		{5, 5},
		{1, 1},
		{0, 1},
		{-3, 1},
	}

	for _, tt := range tests {
		m := newOptionMirror()
		apply(t, m, WithRetry(tt.attempts, time.Millisecond))
		if m.config.Retry.MaxAttempts != tt.want {
			t.Errorf("WithRetry(%d) MaxAttempts = %d, want %d", tt.attempts, m.config.Retry.MaxAttempts, tt.want)
		}
	}
}

func TestWithCookies(t *testing.T) {
	m := newOptionMirror()
	apply(t, m,
		WithCookies(map[string]string{"JSESSIONID": "a"}),
		WithCookies(map[string]string{"route": "b"}),
	)

	if m.config.Auth.Type != string(auth.AuthTypeSession) {
		t.Errorf("Auth.Type = %s, want session", m.config.Auth.Type)
	}
	if len(m.config.Auth.Cookies) != 2 {
		t.Errorf("Cookies = %v", m.config.Auth.Cookies)
	}
}

func TestWithBrowserLogin(t *testing.T) {
	m := newOptionMirror()
	apply(t, m, WithBrowserLogin("alice", "secret"))

	if m.config.Auth.Type != string(auth.AuthTypeBrowser) {
		t.Errorf("Auth.Type = %s, want browser", m.config.Auth.Type)
	}
	if m.config.Auth.Username != "alice" || m.config.Auth.Password != "secret" {
		t.Errorf("Auth = %+v", m.config.Auth)
	}
}

func TestWithHeaders_Merges(t *testing.T) {
	m := newOptionMirror()
	apply(t, m,
		WithHeaders(map[string]string{"X-A": "1"}),
		WithHeaders(map[string]string{"X-B": "2"}),
	)
	if len(m.config.CustomHeaders) != 2 {
		t.Errorf("CustomHeaders = %v", m.config.CustomHeaders)
	}
}

func TestWithConfig_Copies(t *testing.T) {
	config := DefaultConfig()
	config.OutputDir = "elsewhere"

	m := newOptionMirror()
	apply(t, m, WithConfig(config), WithOutputDir("final"))

	if m.config.OutputDir != "final" {
		t.Errorf("OutputDir = %s, want later option to win", m.config.OutputDir)
	}
	if config.OutputDir != "elsewhere" {
		t.Error("WithConfig should not alias the caller's config")
	}

	apply(t, m, WithConfig(nil))
	if m.config == nil {
		t.Error("WithConfig(nil) should keep the current config")
	}
}

func TestWithReportAndState(t *testing.T) {
	m := newOptionMirror()
	store := state.NewMemoryStore()
	apply(t, m,
		WithReport("out/report.yaml", false),
		WithStatePath("out/state.db"),
		WithStore(store),
		WithValidate(true),
	)

	if m.config.Report.FilePath != "out/report.yaml" || m.config.Report.Pretty {
		t.Errorf("Report = %+v", m.config.Report)
	}
	if m.config.State.FilePath != "out/state.db" {
		t.Errorf("State = %+v", m.config.State)
	}
	if m.store != store {
		t.Error("WithStore should set the store")
	}
	if !m.config.ValidateAfter {
		t.Error("Validate should be enabled")
	}
}

func TestWithProgress(t *testing.T) {
	var buf bytes.Buffer
	m := newOptionMirror()
	apply(t, m, WithProgress(&buf))

	if !m.config.Progress || m.progressOut != &buf {
		t.Error("WithProgress should enable the display on the given writer")
	}
}

func TestWithLoggingOptions(t *testing.T) {
	l := logger.Nop()
	m := newOptionMirror()
	apply(t, m, WithLogger(l), WithVerbose(true), WithDebug(true), WithUserAgent("test-agent"),
		WithRateLimit(2, 4), WithRespectRobotsTxt(true), WithManifest("urls.yaml"), WithTimeout(time.Second))

	if m.logger != l {
		t.Error("WithLogger should set the logger")
	}
	if !m.config.Verbose || !m.config.Debug {
		t.Error("Verbose and Debug should be set")
	}
	if m.config.UserAgent != "test-agent" || m.config.Manifest != "urls.yaml" || m.config.Timeout != time.Second {
		t.Errorf("config = %+v", m.config)
	}
	if m.config.RateLimit.RequestsPerSecond != 2 || m.config.RateLimit.Burst != 4 || !m.config.RateLimit.RespectRobotsTxt {
		t.Errorf("RateLimit = %+v", m.config.RateLimit)
	}
}
