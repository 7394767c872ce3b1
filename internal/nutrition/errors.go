package nutrition

import "errors"

var (
	// ErrConfiguration means upstream credentials are missing. It is the only
	// error surfaced as a request-level failure.
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstreamUnavailable wraps non-success responses from the database or estimator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUnparsableResponse means no usable JSON was found in an upstream body.
	ErrUnparsableResponse = errors.New("unparsable response")

	// ErrNoMatch means zero candidates or portions were found.
	ErrNoMatch = errors.New("no match")
)
