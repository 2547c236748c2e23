package http

import (
	"github.com/pkg/errors"

	"http-stack/transport"
)

// Code identifies an engine error on the wire-facing API.
type Code int

const (
	CodeInvalidRequestLine Code = 1 + iota
	CodeInvalidRequestHeader
	CodeUnsupportedHTTPVersion
	CodeInvalidContentLength
	CodeInvalidChunkLength
	CodeInvalidChunkDelimiter
)

var (
	ErrInvalidRequestLine     = errors.New("invalid request line")
	ErrInvalidRequestHeader   = errors.New("invalid request header")
	ErrUnsupportedHTTPVersion = errors.New("unsupported http version")
	ErrInvalidContentLength   = errors.New("invalid content length")
	ErrInvalidChunkLength     = errors.New("invalid chunk length")
	ErrInvalidChunkDelimiter  = errors.New("chunk delimiter not found")

	// ErrInvalidResponseState reports a protocol-contract violation by the
	// caller, like writing after Finish or setting trailers on an identity
	// response.
	ErrInvalidResponseState = errors.New("invalid response state")
)

var codes = map[Code]error{
	CodeInvalidRequestLine:     ErrInvalidRequestLine,
	CodeInvalidRequestHeader:   ErrInvalidRequestHeader,
	CodeUnsupportedHTTPVersion: ErrUnsupportedHTTPVersion,
	CodeInvalidContentLength:   ErrInvalidContentLength,
	CodeInvalidChunkLength:     ErrInvalidChunkLength,
	CodeInvalidChunkDelimiter:  ErrInvalidChunkDelimiter,
}

// CodeOf resolves the numeric code of any wrapped engine error.
func CodeOf(err error) (Code, bool) {
	for code, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return code, true
		}
	}
	return 0, false
}

// IsParseError reports whether err makes the current exchange unusable
// because the request could not be parsed. Transport errors are not parse
// errors.
func IsParseError(err error) bool {
	if errors.Is(err, transport.ErrConnClosed) {
		return false
	}
	_, ok := CodeOf(err)
	return ok
}
