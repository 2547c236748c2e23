package http

import (
	"sort"

	"http-stack/application/util/rule"
)

// Headers is a case-insensitive name→value map. Adding a name that already
// exists coalesces the values with ", ". Names that are not valid tokens
// (the "/"-prefixed trailer namespace) are stored as given.
type Headers struct{ underlying map[string]string }

func NewHeaders(initial map[string]string) Headers {
	clone := make(map[string]string, len(initial))

	h := Headers{underlying: clone}
	for k, v := range initial {
		h.Set(k, v)
	}

	return h
}

func (h *Headers) Get(key string) (value string, ok bool) {
	value, ok = h.underlying[canonical(key)]
	return
}

// Set overwrites any existing value for key.
func (h *Headers) Set(key, value string) {
	h.underlying[canonical(key)] = value
}

// Add coalesces with an existing value by joining with ", ".
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.2-4
func (h *Headers) Add(key, value string) {
	key = canonical(key)
	if existing, ok := h.underlying[key]; ok {
		value = existing + ", " + value
	}
	h.underlying[key] = value
}

func (h *Headers) Del(key string) {
	delete(h.underlying, canonical(key))
}

func (h *Headers) Len() int { return len(h.underlying) }

// Fields returns all entries as [name, value] pairs in sorted name order,
// so serialized header blocks are deterministic.
func (h *Headers) Fields() (fields [][2]string) {
	names := make([]string, 0, len(h.underlying))
	for name := range h.underlying {
		names = append(names, name)
	}
	sort.Strings(names)

	fields = make([][2]string, 0, len(names))
	for _, name := range names {
		fields = append(fields, [2]string{name, h.underlying[name]})
	}

	return fields
}

func canonical(s string) string {
	if rule.IsValidToken(s) {
		s = toCanonicalFieldName(s)
	}
	return s
}

// This only works for valid token.
func toCanonicalFieldName(s string) string {
	const capitalDiff = 'a' - 'A'
	b := []byte(s)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			c -= capitalDiff
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += capitalDiff
		}
		b[i] = c
		upper = c == '-'
	}
	return string(b)
}
