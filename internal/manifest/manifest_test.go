package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadStartURLs(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name:    "flat json",
			file:    "manual_urls.json",
			content: `{"urls": ["https://bid3.afry.com/pages/a.html", "https://bid3.afry.com/pages/b.html"]}`,
			want:    []string{"https://bid3.afry.com/pages/a.html", "https://bid3.afry.com/pages/b.html"},
		},
		{
			name: "sectioned json keeps document order",
			file: "manual_sections_urls.json",
			content: `{
  "Technical manual": ["https://bid3.afry.com/pages/tm/intro.html"],
  "Administration": ["https://bid3.afry.com/pages/adm/a.html", "https://bid3.afry.com/pages/adm/b.html"],
  "version": 2
}`,
			want: []string{
				"https://bid3.afry.com/pages/tm/intro.html",
				"https://bid3.afry.com/pages/adm/a.html",
				"https://bid3.afry.com/pages/adm/b.html",
			},
		},
		{
			name: "yaml",
			file: "manual_urls.yaml",
			content: `urls:
  - https://bid3.afry.com/pages/a.html
  - https://bid3.afry.com/pages/a.html
  - "  https://bid3.afry.com/pages/c.html  "
`,
			want: []string{"https://bid3.afry.com/pages/a.html", "https://bid3.afry.com/pages/c.html"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadStartURLs(writeManifest(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadStartURLs() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LoadStartURLs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadStartURLs_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{"urls": [`},
		{"top-level list", `["https://bid3.afry.com/pages/a.html"]`},
		{"urls not a list", `{"urls": "https://bid3.afry.com/pages/a.html"}`},
		{"non-string entry", `{"urls": ["https://bid3.afry.com/pages/a.html", 42]}`},
		{"no urls", `{"urls": []}`},
		{"no lists", `{"name": "portal"}`},
		{"empty file", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStartURLs(writeManifest(t, "m.json", tt.content))
			if !crawlerrors.IsConfigError(err) {
				t.Errorf("LoadStartURLs() error = %v, want config error", err)
			}
		})
	}
}

func TestLoadStartURLs_Missing(t *testing.T) {
	_, err := LoadStartURLs(filepath.Join(t.TempDir(), "nope.json"))
	if !crawlerrors.IsConfigError(err) {
		t.Errorf("LoadStartURLs() error = %v, want config error", err)
	}
}
