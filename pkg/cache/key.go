package cache

import (
	"strconv"
	"strings"
)

// Key builds the canonical cache key for a query: template id, the component name
// lowercased and trimmed, and version ids verbatim. Name and versions are quoted so
// separators inside them cannot make two different queries share a key.
func Key(template, component string, versions ...string) string {
	var b strings.Builder
	b.WriteString(template)
	b.WriteByte('|')
	b.WriteString(strconv.Quote(strings.ToLower(strings.TrimSpace(component))))
	for _, v := range versions {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(v))
	}
	return b.String()
}
