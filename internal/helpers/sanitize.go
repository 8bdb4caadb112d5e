package helpers

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a shared policy that strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText strips markup from user-supplied text, collapses whitespace and
// cuts the result to at most max runes. max <= 0 keeps the full text.
func PlainText(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// bluemonday escapes what it keeps; callers store and index raw text
	s = html.UnescapeString(StrictHTMLPolicy().Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if max > 0 && utf8.RuneCountInString(s) > max {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:max]))
	}
	return s
}
