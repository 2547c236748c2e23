// Package uri implements the percent-encoding subset request targets need.
package uri

import "strings"

func hex(c byte) (h [2]byte) {
	const hexSet = "0123456789ABCDEF"
	h[0] = hexSet[c>>4]
	h[1] = hexSet[c&0xF]
	return
}

func unhex(h [2]byte) (c byte) {
	return (hexToNum(h[0]) << 4) | hexToNum(h[1])
}

func hexToNum(h byte) byte {
	switch {
	case '0' <= h && h <= '9':
		return h - '0'
	case 'a' <= h && h <= 'f':
		return h - 'a' + 10
	case 'A' <= h && h <= 'F':
		return h - 'A' + 10
	}
	return 0
}

func isHexDigit(h byte) bool {
	return ('0' <= h && h <= '9') || ('a' <= h && h <= 'f') || ('A' <= h && h <= 'F')
}

// Unescape decodes %HH triplets. A '%' not followed by two hex digits stays
// literal. When plusToSpace is set, '+' decodes to SP.
func Unescape(s string, plusToSpace bool) string {
	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case c == '%' && idx+2 < len(s) && isHexDigit(s[idx+1]) && isHexDigit(s[idx+2]):
			b.WriteByte(unhex([2]byte{s[idx+1], s[idx+2]}))
			idx += 2
		case c == '+' && plusToSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.3
func isUnreserved(c byte) bool {
	if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
		return true
	}
	switch c {
	case '-', '.', '_', '~':
		return true
	}
	return false
}

// Escape percent-encodes everything but unreserved characters. SP becomes
// '+' so the output round-trips through Unescape(s, true).
func Escape(s string) string {
	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			h := hex(c)
			b.Write([]byte{'%', h[0], h[1]})
		}
	}

	return b.String()
}
