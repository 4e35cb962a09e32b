package research

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// plainText strips every HTML element from search snippets and page titles,
// which some providers return with highlighting markup, and collapses
// whitespace.
func plainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strings.Join(strings.Fields(html.UnescapeString(strictPolicy.Sanitize(s))), " ")
}
