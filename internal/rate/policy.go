package rate

import (
	"math"
	"time"
)

// Action names a rate-limited operation.
type Action string

const (
	ActionLogin    Action = "login"
	ActionRegister Action = "register"
	ActionRefresh  Action = "refresh"
	ActionAPI      Action = "api"
)

// Policy bounds the attempts allowed per window.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultPolicies returns the built-in per-action policies.
func DefaultPolicies() map[Action]Policy {
	return map[Action]Policy{
		ActionLogin:    {MaxAttempts: 5, Window: 15 * time.Minute},
		ActionRegister: {MaxAttempts: 3, Window: time.Hour},
		ActionRefresh:  {MaxAttempts: 10, Window: time.Hour},
		ActionAPI:      {MaxAttempts: 100, Window: time.Hour},
	}
}

// Entry is the state of one window.
type Entry struct {
	Count   int
	ResetAt time.Time
	Blocked bool
}

// Decision is the result of a Check.
type Decision struct {
	Allowed     bool
	Count       int
	MaxAttempts int
	ResetAt     time.Time
	RetryAfter  time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. A denied decision
// always reports at least one second.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Status is a read-only view of a key's current window.
type Status struct {
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	ResetTime   time.Time `json:"resetTime"`
	Blocked     bool      `json:"blocked"`
}
