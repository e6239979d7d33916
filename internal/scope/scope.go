// Package scope decides which portal URLs may be crawled and mirrored.
package scope

import (
	"net/url"
	"regexp"
	"strings"
)

// Rules holds optional traversal filters applied on top of the content path.
type Rules struct {
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`
}

// Policy checks URLs against the portal's content-path prefix.
type Policy struct {
	domain         string
	contentPrefix  string
	excludeRegexps []*regexp.Regexp
}

// NewPolicy creates a policy for a portal domain (scheme and host, e.g.
// "https://bid3.afry.com") and a content path (e.g. "/pages/").
func NewPolicy(domain, contentPath string, rules Rules) (*Policy, error) {
	parsed, err := url.Parse(domain)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &url.Error{Op: "parse", URL: domain, Err: errMissingHost}
	}

	domain = parsed.Scheme + "://" + parsed.Host
	contentPath = "/" + strings.Trim(contentPath, "/")
	if contentPath != "/" {
		contentPath += "/"
	}

	p := &Policy{
		domain:        domain,
		contentPrefix: domain + contentPath,
	}

	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.excludeRegexps = append(p.excludeRegexps, re)
	}

	return p, nil
}

// Domain returns the portal origin without a trailing slash.
func (p *Policy) Domain() string {
	return p.domain
}

// ContentPrefix returns the content-path prefix every mirrored page starts with.
func (p *Policy) ContentPrefix() string {
	return p.contentPrefix
}

// Allowed reports whether url falls under the content-path prefix.
func (p *Policy) Allowed(url string) bool {
	return strings.HasPrefix(url, p.contentPrefix)
}

// SameSite reports whether url is served by the portal origin.
func (p *Policy) SameSite(url string) bool {
	return url == p.domain || strings.HasPrefix(url, p.domain+"/")
}

// InCrawlScope reports whether a discovered link should be enqueued for a
// crawl bounded by prefixes.
func (p *Policy) InCrawlScope(url string, prefixes []string) bool {
	if !p.Allowed(url) {
		return false
	}
	for _, re := range p.excludeRegexps {
		if re.MatchString(url) {
			return false
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// DirectoryPrefixes returns the scope prefixes of a start URL: its containing
// directory and, for a "name.html" resource, the sibling directory "name/".
func DirectoryPrefixes(startURL string) []string {
	idx := strings.LastIndex(startURL, "/")
	if idx < 0 {
		return nil
	}
	base, name := startURL[:idx], startURL[idx+1:]

	prefixes := []string{base + "/"}
	if strings.HasSuffix(name, ".html") && name != ".html" {
		prefixes = append(prefixes, base+"/"+strings.TrimSuffix(name, ".html")+"/")
	}
	return prefixes
}

var skipSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Resolve returns the absolute form of ref relative to base, without its
// fragment. ok is false for references that never name a fetchable resource.
func Resolve(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range skipSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	resolved := baseURL.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	return resolved.String(), true
}

// Fragment returns the "#fragment" suffix of a reference, or "".
func Fragment(ref string) string {
	if idx := strings.Index(ref, "#"); idx >= 0 {
		return ref[idx:]
	}
	return ""
}

// IsAbsoluteReference reports whether a reference carries a scheme or is
// protocol-relative, i.e. points outside a local mirror.
func IsAbsoluteReference(ref string) bool {
	if strings.HasPrefix(ref, "//") {
		return true
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return strings.Contains(ref, "://")
	}
	return parsed.Scheme != ""
}
