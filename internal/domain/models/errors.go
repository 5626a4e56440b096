package models

import "errors"

// Failure taxonomy shared across the gateway, cache, and aggregator.
var (
	// ErrRateLimited is returned only when the caller opted out of queuing.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrOverloaded means the provider queue is at its maximum depth.
	ErrOverloaded = errors.New("provider queue overloaded")
	// ErrTimeout means the request exceeded its deadline while queued or
	// in flight.
	ErrTimeout = errors.New("request timed out")
	// ErrUpstream wraps provider-side failures and malformed payloads.
	ErrUpstream = errors.New("upstream error")
	// ErrNoData means every exchange failed for a cycle; callers fall back
	// to the static producer.
	ErrNoData = errors.New("no data available")
)
