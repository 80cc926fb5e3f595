// Package textutil cleans user-supplied text before it is stored.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

// A bluemonday policy is safe for concurrent use once built. A cases.Caser
// is not, so Fold builds one per call.
var strict = bluemonday.StrictPolicy()

// Sanitize trims s and strips any HTML markup. The result is plain text:
// characters such as ' and & are kept as typed, so callers embedding it in
// HTML must escape it.
func Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(strings.TrimSpace(s))))
}

// SplitTags splits a comma-separated tag list.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CleanTags sanitizes each tag and drops the blank ones. Duplicates are kept.
func CleanTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if clean := Sanitize(t); clean != "" {
			tags = append(tags, clean)
		}
	}
	return tags
}

// Fold returns s case-folded for caseless comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsFold reports whether substr occurs in s ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}
