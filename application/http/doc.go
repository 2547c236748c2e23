// Package http implements a connection-oriented HTTP/1.1 server engine.
//
// The engine binds one request/response pair at a time (an Exchange) to a
// transport.Stream, hides Content-Length / chunked framing behind plain
// Read and Write calls, and leaves the stream positioned at the next
// request (or ready for a protocol upgrade) after Finish.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
