// Package paths normalizes product slugs and flow page routes.
package paths

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const maxSlugLen = 64

// NormalizeSlug turns a product name or slug into its canonical slug.
// Letters are lower-cased, spaces and underscores become hyphens, other
// characters are dropped, and runs of hyphens collapse to one.
func NormalizeSlug(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("slug cannot be empty")
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case r == '-' || r == ' ' || r == '_':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")

	if slug == "" {
		return "", fmt.Errorf("slug must contain at least one letter or digit")
	}
	if len(slug) > maxSlugLen {
		return "", fmt.Errorf("slug exceeds maximum length of %d bytes", maxSlugLen)
	}
	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("invalid slug format: %s", slug)
	}
	return slug, nil
}

// SplitPath splits a slash-separated path into non-empty segments
func SplitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
