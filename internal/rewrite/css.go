package rewrite

import (
	"regexp"
	"strings"
)

// cssURLPattern matches url(...) references, quoted or not.
var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")]*)(['"]?)\s*\)`)

// rewriteCSSURLs replaces every url(...) reference in css for which localize
// returns a replacement. References it declines are left untouched.
func rewriteCSSURLs(css string, localize func(ref string) (string, bool)) (string, int) {
	replaced := 0
	out := cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		parts := cssURLPattern.FindStringSubmatch(match)
		quote, ref := parts[1], strings.TrimSpace(parts[2])
		if parts[1] != parts[3] || ref == "" {
			return match
		}

		local, ok := localize(ref)
		if !ok {
			return match
		}
		replaced++
		return "url(" + quote + local + quote + ")"
	})
	return out, replaced
}
