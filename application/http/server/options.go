package server

import "time"

type Options struct {
	Timeout TimeoutOptions
}

type TimeoutOptions struct {
	// Idle bounds the wait for the next request head on a kept-alive
	// connection. Zero means no limit.
	Idle time.Duration

	// Read and Write bound the body phases of one exchange.
	Read  time.Duration
	Write time.Duration
}
