package http

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"http-stack/application/util/rule"
	"http-stack/application/util/uri"
)

// Version is an HTTP-version token. Only HTTP/1.1 is accepted on input.
type Version struct {
	Major, Minor int
}

var V11 = Version{Major: 1, Minor: 1}

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// parseVersion enforces the request-line grammar "HTTP/" DIGIT "." DIGIT.
// Multi-digit versions are out of that grammar and rejected here.
func parseVersion(b []byte) (Version, error) {
	const prefix = "HTTP/"
	if len(b) != len(prefix)+3 || string(b[:len(prefix)]) != prefix {
		return Version{}, errors.Errorf("malformed http version: %q", b)
	}

	major, dot, minor := b[5], b[6], b[7]
	if !rule.IsDigit(rune(major)) || dot != '.' || !rule.IsDigit(rune(minor)) {
		return Version{}, errors.Errorf("malformed http version: %q", b)
	}

	return Version{Major: int(major - '0'), Minor: int(minor - '0')}, nil
}

// parseHeaderLine splits NAME ":" OWS VALUE. The name must be a token,
// which also forbids whitespace between the name and the colon.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1
func parseHeaderLine(line []byte) (name, value string, err error) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", errors.Errorf("header line without colon: %q", string(line))
	}

	name = string(line[:idx])
	if !rule.IsValidToken(name) {
		return "", "", errors.Errorf("header name is not a token: %q", name)
	}

	ows := string(rule.OWS)
	value = string(bytes.Trim(line[idx+1:], ows))

	return name, value, nil
}

// RequestHead is the parsed request line, decomposed target and headers.
// It is not mutated after parsing, except that chunked trailers are merged
// into Headers under "/"-prefixed names once the body has been read through.
type RequestHead struct {
	Method  string
	Target  string
	Version Version

	Path     string
	Query    map[string]string
	Fragment string

	Headers Headers
}

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyIdentity
	bodyChunked
)

// BodyMode describes how the request body is framed.
type BodyMode struct {
	kind   bodyKind
	length uint
}

func NoBody() BodyMode                  { return BodyMode{kind: bodyNone} }
func IdentityBody(length uint) BodyMode { return BodyMode{kind: bodyIdentity, length: length} }
func ChunkedBody() BodyMode             { return BodyMode{kind: bodyChunked} }

func (m BodyMode) Chunked() bool { return m.kind == bodyChunked }
func (m BodyMode) HasBody() bool { return m.kind != bodyNone }

// Length is the declared length for identity framing, zero otherwise.
func (m BodyMode) Length() uint { return m.length }

// readRequestHead parses one request head off lb and derives the body
// framing mode from its headers.
func readRequestHead(lb *LineBuffer) (head RequestHead, mode BodyMode, err error) {
	// Load the whole header block up front so the line scan below is
	// typically a pure in-memory affair.
	if err := lb.LoadUntil(rule.CRLFCRLF); err != nil {
		return head, mode, errors.Wrap(err, "loading header block")
	}

	// An empty line can be received before the request line.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
	var line []byte
	for len(line) == 0 {
		line, err = lb.TakeLine()
		if err != nil {
			return head, mode, errors.Wrap(err, "reading request line")
		}
	}

	if head, err = parseRequestLine(line); err != nil {
		return head, mode, err
	}

	head.Headers = NewHeaders(nil)
	for {
		line, err := lb.TakeLine()
		if err != nil {
			return head, mode, errors.Wrap(err, "reading header line")
		}
		if len(line) == 0 {
			// No more headers.
			break
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return head, mode, errors.Wrapf(ErrInvalidRequestHeader, "%s", err)
		}

		head.Headers.Add(name, value)
	}

	head.Path, head.Query, head.Fragment = splitTarget(head.Target)

	mode, err = bodyModeFromHeaders(&head.Headers)
	return head, mode, err
}

func parseRequestLine(line []byte) (head RequestHead, err error) {
	parts := bytes.Split(line, []byte{rule.SP})
	if len(parts) != 3 {
		return head, errors.Wrapf(ErrInvalidRequestLine, "%q", string(line))
	}

	method := string(parts[0])
	if !rule.IsValidToken(method) {
		return head, errors.Wrapf(ErrInvalidRequestLine, "method is not a token: %q", method)
	}

	target := string(parts[1])
	if len(target) == 0 {
		return head, errors.Wrap(ErrInvalidRequestLine, "empty request target")
	}

	ver, verr := parseVersion(parts[2])
	if verr != nil {
		return head, errors.Wrapf(ErrInvalidRequestLine, "%s", verr)
	}
	if ver != V11 {
		return head, errors.Wrapf(ErrUnsupportedHTTPVersion, "%s", ver)
	}

	return RequestHead{Method: method, Target: target, Version: ver}, nil
}

// splitTarget decomposes PATH ("?" QUERY)? ("#" FRAGMENT)? and decodes each
// part.
func splitTarget(target string) (path string, query map[string]string, fragment string) {
	rest, frag, _ := strings.Cut(target, "#")
	rawPath, rawQuery, hasQuery := strings.Cut(rest, "?")

	path = uri.Unescape(rawPath, true)
	fragment = uri.Unescape(frag, true)

	if hasQuery {
		query = uri.ParseQuery(rawQuery)
	} else {
		query = make(map[string]string)
	}

	return path, query, fragment
}

// bodyModeFromHeaders derives the framing mode exactly once per request.
// A non-identity Transfer-Encoding wins over Content-Length.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
func bodyModeFromHeaders(h *Headers) (BodyMode, error) {
	if te, ok := h.Get("Transfer-Encoding"); ok && !strings.EqualFold(te, "identity") {
		return ChunkedBody(), nil
	}

	cl, ok := h.Get("Content-Length")
	if !ok {
		return NoBody(), nil
	}

	len64, err := strconv.ParseUint(cl, 10, 64)
	if err != nil {
		return BodyMode{}, errors.Wrapf(ErrInvalidContentLength, "%q", cl)
	}

	return IdentityBody(uint(len64)), nil
}
