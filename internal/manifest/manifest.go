// Package manifest loads the list of start URLs for a mirror run.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	crawlerrors "github.com/PortalMirror/portalmirror/internal/errors"
)

// URLsKey is the key of the flat manifest shape.
const URLsKey = "urls"

// LoadStartURLs reads a manifest in one of two shapes, JSON or YAML:
//
//	{"urls": ["https://...", ...]}
//	{"section A": ["https://...", ...], "section B": [...]}
//
// Sections are flattened in document order. Duplicate URLs are dropped.
func LoadStartURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, crawlerrors.NewConfigError(path, "manifest not found", err)
		}
		return nil, crawlerrors.NewConfigError(path, "cannot read manifest", err)
	}
	return Parse(path, data)
}

// Parse decodes manifest content. name is only used in error messages.
func Parse(name string, data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, crawlerrors.NewConfigError(name, "manifest is not valid JSON or YAML", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, crawlerrors.NewConfigError(name, "manifest is empty", nil)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, crawlerrors.NewConfigError(name, "manifest must be an object", nil)
	}

	var urls []string
	if list := lookup(root, URLsKey); list != nil {
		if list.Kind != yaml.SequenceNode {
			return nil, crawlerrors.NewConfigError(name, `"urls" must be a list`, nil)
		}
		urls, err := appendURLs(name, URLsKey, nil, list)
		if err != nil {
			return nil, err
		}
		return finish(name, urls)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.SequenceNode {
			continue
		}
		var err error
		if urls, err = appendURLs(name, key.Value, urls, value); err != nil {
			return nil, err
		}
	}
	return finish(name, urls)
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func appendURLs(name, section string, urls []string, list *yaml.Node) ([]string, error) {
	for i, item := range list.Content {
		if item.Kind != yaml.ScalarNode || item.ShortTag() != "!!str" {
			return nil, crawlerrors.NewConfigError(name,
				fmt.Sprintf("%s[%d]: expected a URL string", section, i), nil)
		}
		if u := strings.TrimSpace(item.Value); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

func finish(name string, urls []string) ([]string, error) {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, crawlerrors.NewConfigError(name, "manifest lists no start URLs", nil)
	}
	return out, nil
}
