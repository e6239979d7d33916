package rewrite

import (
	"bytes"

	"github.com/PortalMirror/portalmirror/internal/scope"
	"golang.org/x/net/html"
)

// ExtractLinks returns the absolute targets of a page's hyperlinks in
// document order, without duplicates or fragments. <link> elements count
// unless they name an asset such as a stylesheet or icon.
func ExtractLinks(pageURL string, content []byte) []string {
	links := make([]string, 0, 64)
	seen := make(map[string]bool)

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return links
	}

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && isHyperlinkNode(n) {
			if href, ok := nodeAttr(n, "href"); ok {
				if link, ok := scope.Resolve(pageURL, href); ok && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}

	traverse(doc)
	return links
}

func isHyperlinkNode(n *html.Node) bool {
	switch n.Data {
	case "a", "area":
		return true
	case "link":
		rel, _ := nodeAttr(n, "rel")
		typ, _ := nodeAttr(n, "type")
		return !IsAssetRel(rel, typ)
	}
	return false
}

func nodeAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
