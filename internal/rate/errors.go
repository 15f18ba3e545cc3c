package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that convert a denied Decision
	// into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnknownAction is returned when no policy is configured for an action.
	ErrUnknownAction = errors.New("unknown rate limit action")
	// ErrRedisUnavailable wraps Redis backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
