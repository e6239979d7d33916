// Package validate checks a finished mirror for hyperlinks to missing files.
package validate

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
	"github.com/PortalMirror/portalmirror/internal/rewrite"
	"github.com/PortalMirror/portalmirror/internal/scope"
)

// BrokenLink is a relative hyperlink whose target does not exist.
type BrokenLink struct {
	Page string `json:"page" yaml:"page"`
	Href string `json:"href" yaml:"href"`
}

func (b BrokenLink) String() string {
	return fmt.Sprintf("%s: broken link %s", b.Page, b.Href)
}

// Strings formats links for reports.
func Strings(links []BrokenLink) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.String()
	}
	return out
}

// LocalSite walks every .html file under root and reports relative
// hyperlinks (<a>, <area> and non-asset <link>) that do not resolve to an
// existing file. Absolute links are not
// checked. A missing or empty root yields no findings.
func LocalSite(root string) ([]BrokenLink, error) {
	var broken []BrokenLink

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil
		}

		links, err := checkPage(root, path)
		if err != nil {
			return err
		}
		broken = append(broken, links...)
		return nil
	})
	if err != nil {
		return broken, crawlerrors.NewIOError(root, "validate", err)
	}
	return broken, nil
}

func checkPage(root, page string) ([]BrokenLink, error) {
	f, err := os.Open(page)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, err
	}

	var broken []BrokenLink
	doc.Find("a[href], area[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "link" {
			rel, _ := s.Attr("rel")
			typ, _ := s.Attr("type")
			if rewrite.IsAssetRel(rel, typ) {
				return
			}
		}
		href, _ := s.Attr("href")
		target, ok := localTarget(root, filepath.Dir(page), href)
		if ok && !exists(target) {
			broken = append(broken, BrokenLink{Page: page, Href: href})
		}
	})
	return broken, nil
}

// localTarget maps href onto the file it names. ok is false for references
// that are not checked.
func localTarget(root, dir, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || scope.IsAbsoluteReference(href) {
		return "", false
	}

	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return "", false
	}

	p, err := url.PathUnescape(href)
	if err != nil {
		p = href
	}

	if strings.HasPrefix(p, "/") {
		return filepath.Join(root, filepath.FromSlash(p)), true
	}
	return filepath.Join(dir, filepath.FromSlash(p)), true
}

func exists(target string) bool {
	info, err := os.Stat(target)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(target, "index.html"))
		return err == nil
	}
	return true
}
