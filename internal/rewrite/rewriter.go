// Package rewrite localizes a fetched page: hyperlinks and asset references are
// rewritten to relative paths inside the mirror and the page is saved.
package rewrite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/PortalMirror/portalmirror/internal/errors"
	portalhttp "github.com/PortalMirror/portalmirror/internal/http"
	"github.com/PortalMirror/portalmirror/internal/localpath"
	"github.com/PortalMirror/portalmirror/internal/logger"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/scope"
)

// Downloader saves the body of a URL to a file.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (*portalhttp.Result, error)
}

// assetRels are the <link rel> values that name a resource to download.
// Other <link> elements are treated as hyperlinks.
var assetRels = map[string]bool{
	"stylesheet":       true,
	"icon":             true,
	"apple-touch-icon": true,
	"mask-icon":        true,
	"preload":          true,
	"manifest":         true,
}

// Config wires a Rewriter to the rest of the session.
type Config struct {
	Policy     *scope.Policy
	Mapper     *localpath.Mapper
	Downloader Downloader
	Assets     *AssetStore
	Metrics    *metrics.Collector
	Logger     *logger.Logger
}

// Rewriter localizes pages.
type Rewriter struct {
	policy     *scope.Policy
	mapper     *localpath.Mapper
	downloader Downloader
	assets     *AssetStore
	metrics    *metrics.Collector
	log        *logger.Logger
}

// PageResult describes one saved page.
type PageResult struct {
	URL              string
	Path             string
	LinksRewritten   int
	AssetsDownloaded int
	AssetsReused     int
	AssetsFailed     []string
}

// New creates a rewriter.
func New(cfg Config) *Rewriter {
	r := &Rewriter{
		policy:     cfg.Policy,
		mapper:     cfg.Mapper,
		downloader: cfg.Downloader,
		assets:     cfg.Assets,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
	if r.assets == nil {
		r.assets = NewAssetStore()
	}
	if r.log == nil {
		r.log = logger.Nop()
	}
	return r
}

// RewriteAndSave localizes content fetched from pageURL and writes it to the
// page's canonical path. Asset failures never prevent the save.
func (r *Rewriter) RewriteAndSave(ctx context.Context, pageURL string, content []byte) (*PageResult, error) {
	pagePath, err := r.mapper.PagePath(pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.NewParseError(pageURL, "html_parse", err)
	}

	result := &PageResult{URL: pageURL, Path: pagePath}

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		r.rewriteHyperlink(s, "href", pageURL, pagePath, result)
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if isAssetLink(s) {
			r.rewriteAssetAttr(ctx, s, "href", pageURL, pagePath, result)
			return
		}
		r.rewriteHyperlink(s, "href", pageURL, pagePath, result)
	})

	doc.Find("script[src], img[src]").Each(func(_ int, s *goquery.Selection) {
		r.rewriteAssetAttr(ctx, s, "src", pageURL, pagePath, result)
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		css := s.Text()
		if css == "" {
			return
		}
		if out, n := rewriteCSSURLs(css, r.cssLocalizer(ctx, pageURL, pagePath, result)); n > 0 {
			setRawText(s, out)
		}
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		css, _ := s.Attr("style")
		if out, n := rewriteCSSURLs(css, r.cssLocalizer(ctx, pageURL, pagePath, result)); n > 0 {
			s.SetAttr("style", out)
		}
	})

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Get(0)); err != nil {
		return nil, errors.NewParseError(pageURL, "html_render", err)
	}

	if err := writeFile(pagePath, buf.Bytes()); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordLinksRewritten(result.LinksRewritten)
	}
	return result, nil
}

// SaveRaw writes content fetched from pageURL to the page's canonical path
// unchanged. It is used for documents that are not HTML.
func (r *Rewriter) SaveRaw(pageURL string, content []byte) (*PageResult, error) {
	pagePath, err := r.mapper.PagePath(pageURL)
	if err != nil {
		return nil, err
	}
	if err := writeFile(pagePath, content); err != nil {
		return nil, err
	}
	return &PageResult{URL: pageURL, Path: pagePath}, nil
}

// IsHTML reports whether a Content-Type header names an HTML document.
// A missing header counts as HTML.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	return strings.Contains(strings.TrimSpace(mediaType), "html")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(path, "mkdir", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIOError(path, "write", err)
	}
	return nil
}

func isAssetLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	typ, _ := s.Attr("type")
	return IsAssetRel(rel, typ)
}

// IsAssetRel reports whether a <link> with the given rel and type attributes
// names a resource to download rather than another page.
func IsAssetRel(rel, typ string) bool {
	if strings.EqualFold(typ, "text/css") {
		return true
	}
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if assetRels[token] {
			return true
		}
	}
	return false
}

// setRawText replaces the children of raw text elements such as <style>.
// goquery's SetText escapes its input, which would corrupt CSS.
func setRawText(s *goquery.Selection, text string) {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// rewriteHyperlink points an in-scope link at the target page's saved file.
func (r *Rewriter) rewriteHyperlink(s *goquery.Selection, attr, pageURL, pagePath string, result *PageResult) {
	ref, _ := s.Attr(attr)
	abs, ok := scope.Resolve(pageURL, ref)
	if !ok || !r.policy.Allowed(abs) {
		return
	}

	target, err := r.mapper.PagePath(abs)
	if err != nil {
		r.log.ErrorEvent(err, abs, "map_link")
		return
	}
	local, err := r.mapper.RelativeRef(pagePath, target)
	if err != nil {
		r.log.ErrorEvent(err, abs, "map_link")
		return
	}

	s.SetAttr(attr, local+scope.Fragment(ref))
	result.LinksRewritten++
}

func (r *Rewriter) rewriteAssetAttr(ctx context.Context, s *goquery.Selection, attr, pageURL, pagePath string, result *PageResult) {
	ref, _ := s.Attr(attr)
	if local, ok := r.localizeAsset(ctx, pageURL, ref, pagePath, result); ok {
		s.SetAttr(attr, local)
	}
}

func (r *Rewriter) cssLocalizer(ctx context.Context, pageURL, pagePath string, result *PageResult) func(string) (string, bool) {
	return func(ref string) (string, bool) {
		return r.localizeAsset(ctx, pageURL, ref, pagePath, result)
	}
}

// localizeAsset makes sure a same-site asset is on disk and returns the
// reference to it relative to pagePath. ok is false when the original
// reference must stay.
func (r *Rewriter) localizeAsset(ctx context.Context, pageURL, ref, pagePath string, result *PageResult) (string, bool) {
	abs, ok := scope.Resolve(pageURL, ref)
	if !ok || !r.policy.SameSite(abs) {
		return "", false
	}

	dest, failure, known := r.assets.Lookup(abs)
	switch {
	case known && failure != nil:
		return "", false
	case known:
		result.AssetsReused++
		if r.metrics != nil {
			r.metrics.RecordAssetReused()
		}
	default:
		var err error
		if dest, err = r.download(ctx, abs); err != nil {
			result.AssetsFailed = append(result.AssetsFailed, abs)
			return "", false
		}
		result.AssetsDownloaded++
	}

	local, err := r.mapper.RelativeRef(pagePath, dest)
	if err != nil {
		return "", false
	}
	return local + scope.Fragment(ref), true
}

// assetDest maps a resource to its file. Resources under the content path
// share the page tree so hyperlinks and asset references agree on one file.
func (r *Rewriter) assetDest(abs string) (string, error) {
	if r.policy.Allowed(abs) {
		return r.mapper.PagePath(abs)
	}
	return r.mapper.AssetPath(abs)
}

func (r *Rewriter) download(ctx context.Context, abs string) (string, error) {
	dest, err := r.assetDest(abs)
	if err != nil {
		r.assets.RecordFailed(abs, err)
		r.log.ErrorEvent(err, abs, "map_asset")
		return "", err
	}

	if _, err := r.downloader.Download(ctx, abs, dest); err != nil {
		// A cancelled run says nothing about the asset itself.
		if errors.GetErrorType(err) != errors.Cancelled {
			r.assets.RecordFailed(abs, err)
		}
		if r.metrics != nil {
			r.metrics.RecordAssetFailed()
		}
		r.log.ErrorEvent(err, abs, "asset_download")
		return "", err
	}

	r.assets.RecordSaved(abs, dest)
	if r.metrics != nil {
		r.metrics.RecordAssetDownloaded()
	}
	return dest, nil
}
