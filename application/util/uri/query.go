package uri

import (
	"sort"
	"strings"
)

// ParseQuery splits a raw query on '&' and each entry on the first '='.
// Entries without '=' are dropped. Names and values are percent/'+' decoded.
// A name occurring twice keeps the last value.
func ParseQuery(raw string) map[string]string {
	query := make(map[string]string)

	for _, entry := range strings.Split(raw, "&") {
		if entry == "" {
			continue
		}

		name, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}

		query[Unescape(name, true)] = Unescape(value, true)
	}

	return query
}

// EncodeQuery is the inverse of ParseQuery. Entries are emitted in sorted
// name order.
func EncodeQuery(query map[string]string) string {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	b := new(strings.Builder)
	for idx, name := range names {
		if idx > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(name))
		b.WriteByte('=')
		b.WriteString(Escape(query[name]))
	}

	return b.String()
}
