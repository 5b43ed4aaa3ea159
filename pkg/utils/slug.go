package utils

import (
	"strings"

	"github.com/gosimple/slug"
)

// Slugify derives a lowercase, dash-separated slug from a human-readable name.
func Slugify(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// SlugifyMax is Slugify truncated to at most max bytes without a trailing dash.
func SlugifyMax(name string, max int) string {
	s := Slugify(name)
	if max > 0 && len(s) > max {
		s = strings.TrimRight(s[:max], "-")
	}
	return s
}
