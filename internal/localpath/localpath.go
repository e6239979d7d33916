// Package localpath maps portal URLs onto files under the mirror's output root.
package localpath

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/scope"
)

const (
	// DirectoryIndex is the file name used for page URLs naming a directory.
	DirectoryIndex = "index.html"
	// assetIndex is the file name used for asset URLs naming a directory.
	assetIndex = "index"
	// fingerprintLen is the number of hex digits of the query hash kept in file names.
	fingerprintLen = 8
)

// Mapper turns URLs into paths below a fixed output root.
type Mapper struct {
	root   string
	policy *scope.Policy
}

// New creates a mapper writing below root for the portal described by policy.
func New(root string, policy *scope.Policy) *Mapper {
	return &Mapper{
		root:   filepath.Clean(root),
		policy: policy,
	}
}

// Root returns the output root.
func (m *Mapper) Root() string {
	return m.root
}

// PagePath returns the canonical save location of a page. The domain and the
// content path are stripped; the rest of the URL path is kept.
func (m *Mapper) PagePath(rawURL string) (string, error) {
	if !m.policy.Allowed(rawURL) {
		return "", crawlerrors.NewScopeError(rawURL, "outside content path")
	}

	rest, err := url.Parse(rawURL[len(m.policy.ContentPrefix()):])
	if err != nil {
		return "", crawlerrors.NewParseError(rawURL, "map_page", err)
	}

	rel := rest.Path
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += DirectoryIndex
	}

	return m.join(rawURL, rel, rest.RawQuery)
}

// AssetPath returns the save location of a same-site resource. Only the
// domain is stripped. Query-bearing URLs get a fingerprint of the query
// appended to the file stem.
func (m *Mapper) AssetPath(rawURL string) (string, error) {
	if !m.policy.SameSite(rawURL) {
		return "", crawlerrors.NewScopeError(rawURL, "not on portal domain")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", crawlerrors.NewParseError(rawURL, "map_asset", err)
	}

	rel := parsed.Path
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += assetIndex
	}

	return m.join(rawURL, rel, parsed.RawQuery)
}

func (m *Mapper) join(rawURL, rel, query string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+rel), "/")
	if cleaned == "" || cleaned == "." {
		return "", crawlerrors.NewScopeError(rawURL, "maps onto the output root itself")
	}

	if query != "" {
		cleaned = withFingerprint(cleaned, query)
	}

	return filepath.Join(m.root, filepath.FromSlash(cleaned)), nil
}

// RelativeRef returns the URL reference that leads from the page saved at
// fromFile to the file at toFile.
func (m *Mapper) RelativeRef(fromFile, toFile string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(fromFile), toFile)
	if err != nil {
		return "", crawlerrors.NewIOError(toFile, "relative_path", err)
	}
	ref := &url.URL{Path: filepath.ToSlash(rel)}
	return ref.String(), nil
}

// QueryFingerprint returns the short stable hash used to tell query variants apart.
func QueryFingerprint(query string) string {
	sum := sha1.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

func withFingerprint(p, query string) string {
	dir, name := path.Split(p)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return dir + stem + "-" + QueryFingerprint(query) + ext
}
