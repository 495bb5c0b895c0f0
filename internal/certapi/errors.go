package certapi

import "errors"

// ErrUpstreamRequest means the HTTP request to the testing-system itself
// failed (connection refused, timeout, DNS).
var ErrUpstreamRequest = errors.New("certapi: upstream request failed")

// ErrAuthRejected means the testing-system responded but rejected the
// presented invoker key (non-2xx status).
var ErrAuthRejected = errors.New("certapi: invoker key rejected")
