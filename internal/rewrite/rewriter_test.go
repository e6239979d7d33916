package rewrite

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/PortalMirror/portalmirror/internal/errors"
	portalhttp "github.com/PortalMirror/portalmirror/internal/http"
	"github.com/PortalMirror/portalmirror/internal/localpath"
	"github.com/PortalMirror/portalmirror/internal/metrics"
	"github.com/PortalMirror/portalmirror/internal/scope"
)

const portal = "https://bid3.afry.com"

type fakeDownloader struct {
	bodies map[string]string
	calls  map[string]int
}

func newFakeDownloader(bodies map[string]string) *fakeDownloader {
	return &fakeDownloader{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeDownloader) Download(ctx context.Context, url, dest string) (*portalhttp.Result, error) {
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return &portalhttp.Result{URL: url, StatusCode: 404}, errors.NewStatusError(url, 404)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dest, []byte(body), 0o644); err != nil {
		return nil, err
	}
	return &portalhttp.Result{URL: url, StatusCode: 200, Bytes: int64(len(body))}, nil
}

type fixture struct {
	root       string
	rewriter   *Rewriter
	downloader *fakeDownloader
	assets     *AssetStore
	metrics    *metrics.Collector
}

func newFixture(t *testing.T, bodies map[string]string) *fixture {
	t.Helper()
	policy, err := scope.NewPolicy(portal, "/pages/", scope.Rules{})
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	root := t.TempDir()
	f := &fixture{
		root:       root,
		downloader: newFakeDownloader(bodies),
		assets:     NewAssetStore(),
		metrics:    metrics.New(),
	}
	f.rewriter = New(Config{
		Policy:     policy,
		Mapper:     localpath.New(root, policy),
		Downloader: f.downloader,
		Assets:     f.assets,
		Metrics:    f.metrics,
	})
	return f
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", rel, err)
	}
	return string(data)
}

func TestRewriteAndSave_HyperlinksAndStylesheet(t *testing.T) {
	f := newFixture(t, map[string]string{
		portal + "/static/site.css": "body{}",
	})
	page := portal + "/pages/technical-manual/intro.html"
	content := `<html><head><link rel="stylesheet" href="https://bid3.afry.com/static/site.css"></head>
<body><a href="sub.html">Sub</a> <a href="/pages/other/x.html#part">X</a>
<a href="https://example.org/">External</a> <a href="mailto:a@b.c">Mail</a></body></html>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), page, []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}

	wantPath := filepath.Join(f.root, "technical-manual", "intro.html")
	if result.Path != wantPath {
		t.Errorf("Path = %q, want %q", result.Path, wantPath)
	}
	if result.LinksRewritten != 2 {
		t.Errorf("LinksRewritten = %d, want 2", result.LinksRewritten)
	}
	if result.AssetsDownloaded != 1 {
		t.Errorf("AssetsDownloaded = %d, want 1", result.AssetsDownloaded)
	}

	saved := f.read(t, "technical-manual/intro.html")
	for _, want := range []string{
		`href="../static/site.css"`,
		`href="sub.html"`,
		`href="../other/x.html#part"`,
		`href="https://example.org/"`,
		`href="mailto:a@b.c"`,
	} {
		if !strings.Contains(saved, want) {
			t.Errorf("saved page missing %s:\n%s", want, saved)
		}
	}

	if css := f.read(t, "static/site.css"); css != "body{}" {
		t.Errorf("site.css = %q", css)
	}
}

func TestRewriteAndSave_AssetFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t, nil)
	page := portal + "/pages/a.html"
	content := `<html><body><img src="/img/missing.png"><script src="/js/app.js"></script></body></html>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), page, []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}

	if len(result.AssetsFailed) != 2 {
		t.Errorf("AssetsFailed = %v, want 2 entries", result.AssetsFailed)
	}
	saved := f.read(t, "a.html")
	if !strings.Contains(saved, `src="/img/missing.png"`) || !strings.Contains(saved, `src="/js/app.js"`) {
		t.Errorf("failed assets should keep their original reference:\n%s", saved)
	}
	if f.metrics.Snapshot().AssetsFailed != 2 {
		t.Errorf("metrics AssetsFailed = %d, want 2", f.metrics.Snapshot().AssetsFailed)
	}
}

func TestRewriteAndSave_OffSiteAssetUntouched(t *testing.T) {
	f := newFixture(t, nil)
	content := `<html><head><script src="https://cdn.example.net/lib.js"></script></head><body></body></html>`

	if _, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/a.html", []byte(content)); err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}

	if len(f.downloader.calls) != 0 {
		t.Errorf("off-site assets should not be downloaded, calls = %v", f.downloader.calls)
	}
	if saved := f.read(t, "a.html"); !strings.Contains(saved, `src="https://cdn.example.net/lib.js"`) {
		t.Errorf("off-site reference changed:\n%s", saved)
	}
}

func TestRewriteAndSave_AssetsDownloadedOncePerRun(t *testing.T) {
	f := newFixture(t, map[string]string{
		portal + "/static/site.css": "body{}",
	})
	content := []byte(`<html><head><link rel="stylesheet" href="/static/site.css"></head><body><img src="/gone.png"></body></html>`)
	ctx := context.Background()

	first, err := f.rewriter.RewriteAndSave(ctx, portal+"/pages/a.html", content)
	if err != nil {
		t.Fatalf("RewriteAndSave(a) error = %v", err)
	}
	second, err := f.rewriter.RewriteAndSave(ctx, portal+"/pages/deep/b.html", content)
	if err != nil {
		t.Fatalf("RewriteAndSave(b) error = %v", err)
	}

	if f.downloader.calls[portal+"/static/site.css"] != 1 {
		t.Errorf("site.css downloaded %d times, want 1", f.downloader.calls[portal+"/static/site.css"])
	}
	if f.downloader.calls[portal+"/gone.png"] != 1 {
		t.Errorf("failed asset retried across pages: %d calls", f.downloader.calls[portal+"/gone.png"])
	}
	if first.AssetsDownloaded != 1 || second.AssetsReused != 1 {
		t.Errorf("first downloaded %d, second reused %d, want 1 and 1", first.AssetsDownloaded, second.AssetsReused)
	}

	if saved := f.read(t, "deep/b.html"); !strings.Contains(saved, `href="../static/site.css"`) {
		t.Errorf("reused asset should be relative to the second page:\n%s", saved)
	}
}

func TestRewriteAndSave_QueryAssetsGetDistinctFiles(t *testing.T) {
	f := newFixture(t, map[string]string{
		portal + "/static/app.js?v=1": "one",
		portal + "/static/app.js?v=2": "two",
	})
	content := `<html><head><script src="/static/app.js?v=1"></script><script src="/static/app.js?v=2"></script></head><body></body></html>`

	if _, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/a.html", []byte(content)); err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}

	saved, failed := f.assets.Len()
	if saved != 2 || failed != 0 {
		t.Fatalf("assets saved %d failed %d, want 2 and 0", saved, failed)
	}
	paths := f.assets.Saved()
	if paths[portal+"/static/app.js?v=1"] == paths[portal+"/static/app.js?v=2"] {
		t.Error("query variants share a local file")
	}
}

func TestRewriteAndSave_InlineStyles(t *testing.T) {
	f := newFixture(t, map[string]string{
		portal + "/img/bg.png":    "png",
		portal + "/fonts/a.woff2": "font",
	})
	content := `<html><head><style>
body { background: url("/img/bg.png"); }
nav > a { font-family: "Arial"; background: url("/img/bg.png"); }
@font-face { src: url(/fonts/a.woff2); }
.x { background: url(data:image/png;base64,AAAA); }
.y { background: url('/img/missing.png'); }
</style></head><body><div style="background-image: url('/img/bg.png')"></div></body></html>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/m/a.html", []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}

	saved := f.read(t, "m/a.html")
	for _, want := range []string{
		`body { background: url("../img/bg.png"); }`,
		`nav > a { font-family: "Arial"; background: url("../img/bg.png"); }`,
		`url(../fonts/a.woff2)`,
		`url(data:image/png;base64,AAAA)`,
		`url('/img/missing.png')`,
	} {
		if !strings.Contains(saved, want) {
			t.Errorf("saved page missing %s:\n%s", want, saved)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(saved))
	if err != nil {
		t.Fatalf("parse saved page: %v", err)
	}
	if style, _ := doc.Find("div").Attr("style"); style != "background-image: url('../img/bg.png')" {
		t.Errorf("div style = %q", style)
	}
	if result.AssetsDownloaded != 2 || result.AssetsReused != 2 {
		t.Errorf("downloaded %d reused %d, want 2 and 2", result.AssetsDownloaded, result.AssetsReused)
	}
}

func TestRewriteAndSave_StyleBlockStaysRawText(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want string
	}{
		{
			name: "child combinator",
			rule: `nav > a { background: url(/img/bg.png); }`,
			want: `nav > a { background: url(../img/bg.png); }`,
		},
		{
			name: "quoted font family",
			rule: `p { font-family: "Arial", 'Helvetica'; background: url("/img/bg.png"); }`,
			want: `p { font-family: "Arial", 'Helvetica'; background: url("../img/bg.png"); }`,
		},
		{
			name: "ampersand in content",
			rule: `li::before { content: "a & b"; background: url(/img/bg.png); }`,
			want: `li::before { content: "a & b"; background: url(../img/bg.png); }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]string{portal + "/img/bg.png": "png"})
			content := `<html><head><style>` + tt.rule + `</style></head><body></body></html>`

			if _, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/m/a.html", []byte(content)); err != nil {
				t.Fatalf("RewriteAndSave() error = %v", err)
			}

			saved := f.read(t, "m/a.html")
			if !strings.Contains(saved, "<style>"+tt.want+"</style>") {
				t.Errorf("style block not kept as raw text:\n%s", saved)
			}
			for _, entity := range []string{"&gt;", "&#34;", "&#39;", "&amp;"} {
				if strings.Contains(saved, entity) {
					t.Errorf("style block contains %s:\n%s", entity, saved)
				}
			}
		})
	}
}

func TestRewriteAndSave_ContentPathAssetUsesPageTree(t *testing.T) {
	f := newFixture(t, map[string]string{
		portal + "/pages/m/img/logo.png": "png",
	})
	content := `<html><body><img src="img/logo.png"><a href="img/logo.png">full size</a></body></html>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/m/a.html", []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}
	if result.AssetsDownloaded != 1 {
		t.Errorf("AssetsDownloaded = %d, want 1", result.AssetsDownloaded)
	}

	if got := f.read(t, "m/img/logo.png"); got != "png" {
		t.Errorf("m/img/logo.png = %q", got)
	}
	if _, err := os.Stat(filepath.Join(f.root, "pages")); !os.IsNotExist(err) {
		t.Error("content path resources should not be saved under a pages/ directory")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.read(t, "m/a.html")))
	if err != nil {
		t.Fatalf("parse saved page: %v", err)
	}
	if src, _ := doc.Find("img").Attr("src"); src != "img/logo.png" {
		t.Errorf("img src = %q, want img/logo.png", src)
	}
	if href, _ := doc.Find("a").Attr("href"); href != "img/logo.png" {
		t.Errorf("a href = %q, want img/logo.png", href)
	}
}

func TestSaveRaw(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte("%PDF-1.4\n<a href=\"x.html\">&amp;\n")

	result, err := f.rewriter.SaveRaw(portal+"/pages/m/manual.pdf", body)
	if err != nil {
		t.Fatalf("SaveRaw() error = %v", err)
	}
	if want := filepath.Join(f.root, "m", "manual.pdf"); result.Path != want {
		t.Errorf("Path = %q, want %q", result.Path, want)
	}
	if got := f.read(t, "m/manual.pdf"); got != string(body) {
		t.Errorf("saved = %q, want %q", got, body)
	}

	if _, err := f.rewriter.SaveRaw(portal+"/other/manual.pdf", body); !errors.IsScopeError(err) {
		t.Errorf("SaveRaw(out of scope) error = %v, want scope error", err)
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"application/pdf", false},
		{"text/plain; charset=html", false},
		{"image/png", false},
	}

	for _, tt := range tests {
		if got := IsHTML(tt.contentType); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestRewriteAndSave_NonStylesheetLinkIsHyperlink(t *testing.T) {
	f := newFixture(t, nil)
	content := `<html><head><link rel="next" href="b.html"><link rel="canonical" href="https://bid3.afry.com/pages/a.html"></head><body></body></html>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/a.html", []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}
	if len(f.downloader.calls) != 0 {
		t.Errorf("hyperlink <link> elements should not be downloaded: %v", f.downloader.calls)
	}
	if result.LinksRewritten != 2 {
		t.Errorf("LinksRewritten = %d, want 2", result.LinksRewritten)
	}
}

func TestRewriteAndSave_Deterministic(t *testing.T) {
	f := newFixture(t, map[string]string{portal + "/static/site.css": "x"})
	content := []byte(`<!DOCTYPE html><html><head><link rel="stylesheet" href="/static/site.css"></head><body><p>Hi <a href="b.html">b</a></p></body></html>`)
	ctx := context.Background()

	if _, err := f.rewriter.RewriteAndSave(ctx, portal+"/pages/a.html", content); err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}
	first := f.read(t, "a.html")

	if _, err := f.rewriter.RewriteAndSave(ctx, portal+"/pages/a.html", content); err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}
	if second := f.read(t, "a.html"); first != second {
		t.Errorf("re-saving changed the page:\n%s\n---\n%s", first, second)
	}
	if !strings.HasPrefix(first, "<!DOCTYPE html>") {
		t.Errorf("doctype lost: %s", first)
	}
}

func TestRewriteAndSave_OutOfScopePage(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/other/a.html", []byte("<html></html>"))
	if !errors.IsScopeError(err) {
		t.Errorf("RewriteAndSave() error = %v, want scope error", err)
	}
}

func TestRewriteAndSave_MalformedMarkup(t *testing.T) {
	f := newFixture(t, nil)
	content := `<html><body><div><p>unclosed <a href="b.html">b<table><tr><td>x</body>`

	result, err := f.rewriter.RewriteAndSave(context.Background(), portal+"/pages/a.html", []byte(content))
	if err != nil {
		t.Fatalf("RewriteAndSave() error = %v", err)
	}
	if result.LinksRewritten != 1 {
		t.Errorf("LinksRewritten = %d, want 1", result.LinksRewritten)
	}
}

// =============================================================================
// ExtractLinks Tests
// =============================================================================

func TestExtractLinks(t *testing.T) {
	content := `<html><body>
<a href="sub.html">a</a>
<a href="sub.html#again">dup</a>
<a href="/pages/x/y.html">b</a>
<a href="#top">top</a>
<a href="javascript:void(0)">js</a>
<map><area href="../up.html"></map>
<a>no href</a>
<link rel="stylesheet" href="/static/site.css">
<link rel="icon" href="/favicon.ico">
<link href="/static/print.css" type="text/css">
<link rel="next" href="next.html">
<link rel="alternate" href="/pages/m/intro-print.html">
</body></html>`

	got := ExtractLinks(portal+"/pages/m/intro.html", []byte(content))
	want := []string{
		portal + "/pages/m/sub.html",
		portal + "/pages/x/y.html",
		portal + "/pages/up.html",
		portal + "/pages/m/next.html",
		portal + "/pages/m/intro-print.html",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractLinks() = %v, want %v", got, want)
	}
}

func TestExtractLinks_Empty(t *testing.T) {
	if got := ExtractLinks(portal+"/pages/a.html", nil); len(got) != 0 {
		t.Errorf("ExtractLinks(nil) = %v, want empty", got)
	}
}

// =============================================================================
// CSS Tests
// =============================================================================

func TestRewriteCSSURLs(t *testing.T) {
	localize := func(ref string) (string, bool) {
		if strings.HasPrefix(ref, "/ok/") {
			return "local" + ref, true
		}
		return "", false
	}

	tests := []struct {
		in        string
		want      string
		wantCount int
	}{
		{`a{b:url(/ok/x.png)}`, `a{b:url(local/ok/x.png)}`, 1},
		{`a{b:url("/ok/x.png")}`, `a{b:url("local/ok/x.png")}`, 1},
		{`a{b:url( '/ok/x.png' )}`, `a{b:url('local/ok/x.png')}`, 1},
		{`a{b:url(/no/x.png)}`, `a{b:url(/no/x.png)}`, 0},
		{`a{b:url()}`, `a{b:url()}`, 0},
		{`a{b:url("/ok/x.png')}`, `a{b:url("/ok/x.png')}`, 0},
		{`no urls here`, `no urls here`, 0},
	}

	for _, tt := range tests {
		got, n := rewriteCSSURLs(tt.in, localize)
		if got != tt.want || n != tt.wantCount {
			t.Errorf("rewriteCSSURLs(%q) = %q, %d; want %q, %d", tt.in, got, n, tt.want, tt.wantCount)
		}
	}
}
