package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

// =============================================================================
// DefaultConfig Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Portal.Domain != "https://bid3.afry.com" {
		t.Errorf("Portal.Domain = %s", config.Portal.Domain)
	}
	if config.Portal.ContentPath != "/pages/" {
		t.Errorf("Portal.ContentPath = %s", config.Portal.ContentPath)
	}
	if config.OutputDir != "html" {
		t.Errorf("OutputDir = %s, want html", config.OutputDir)
	}
	if config.Manifest != "manual_urls.json" {
		t.Errorf("Manifest = %s, want manual_urls.json", config.Manifest)
	}
	if config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", config.Timeout)
	}
	if config.Retry.MaxAttempts != 3 || config.Retry.BackoffStep != 500*time.Millisecond {
		t.Errorf("Retry = %+v, want 3 attempts at 500ms", config.Retry)
	}
	if config.Auth.Type != "none" {
		t.Errorf("Auth.Type = %s, want none", config.Auth.Type)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing domain", func(c *Config) { c.Portal.Domain = "" }},
		{"missing output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"negative rate", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
		{"unknown auth", func(c *Config) { c.Auth.Type = "kerberos" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if !crawlerrors.IsConfigError(err) {
				t.Errorf("Validate() error = %v, want config error", err)
			}
		})
	}
}

// =============================================================================
// File Tests
// =============================================================================

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.yaml")
	content := `
portal:
  domain: https://portal.example.com
  content_path: /docs/
  exclude_patterns:
    - print\.html$
output_dir: mirror
retry:
  max_attempts: 5
validate: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if config.Portal.Domain != "https://portal.example.com" || config.Portal.ContentPath != "/docs/" {
		t.Errorf("Portal = %+v", config.Portal)
	}
	if len(config.Portal.ExcludePatterns) != 1 {
		t.Errorf("ExcludePatterns = %v", config.Portal.ExcludePatterns)
	}
	if config.OutputDir != "mirror" || config.Retry.MaxAttempts != 5 || !config.ValidateAfter {
		t.Errorf("config = %+v", config)
	}
	// Unset fields keep their defaults.
	if config.Timeout != 15*time.Second || config.Manifest != "manual_urls.json" {
		t.Errorf("defaults lost: timeout %v manifest %s", config.Timeout, config.Manifest)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !crawlerrors.IsConfigError(err) {
		t.Errorf("missing file error = %v, want config error", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("portal: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); !crawlerrors.IsConfigError(err) {
		t.Errorf("malformed file error = %v, want config error", err)
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	for _, name := range []string{"mirror.yaml", "mirror.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			config := DefaultConfig()
			config.OutputDir = "saved"
			config.Portal.ExcludePatterns = []string{"x"}

			if err := config.SaveToFile(path); err != nil {
				t.Fatalf("SaveToFile() error = %v", err)
			}
			loaded, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile() error = %v", err)
			}
			if loaded.OutputDir != "saved" || len(loaded.Portal.ExcludePatterns) != 1 {
				t.Errorf("loaded = %+v", loaded)
			}
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(EnvUsername, "alice")
	t.Setenv(EnvPassword, "secret")

	config := DefaultConfig()
	config.ApplyEnv()
	if config.Auth.Username != "alice" || config.Auth.Password != "secret" {
		t.Errorf("Auth = %+v", config.Auth)
	}

	config = DefaultConfig()
	config.Auth.Username = "bob"
	config.ApplyEnv()
	if config.Auth.Username != "bob" {
		t.Errorf("explicit username overwritten: %s", config.Auth.Username)
	}
}

func TestConfig_Clone(t *testing.T) {
	config := DefaultConfig()
	config.CustomHeaders = map[string]string{"X-A": "1"}

	clone := config.Clone()
	clone.CustomHeaders["X-A"] = "2"
	clone.Portal.Domain = "https://other.example.com"

	if config.CustomHeaders["X-A"] != "1" || config.Portal.Domain != "https://bid3.afry.com" {
		t.Error("Clone() should not share state with the original")
	}
}
