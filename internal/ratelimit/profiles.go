package ratelimit

import (
	"fmt"

	"github.com/sbeszoomuseum/SBESZooMuseum/internal/types"
)

// Profile names one limiting policy: a key prefix plus thresholds. The
// algorithm is shared; per-IP and per-user limiting differ only in the
// profile applied.
type Profile struct {
	Name      string
	KeyPrefix string
	PerMinute int
	PerHour   int
}

// Key builds the bucket key for a caller identity under this profile,
// e.g. "ip:1.2.3.4" or "user:42".
func (p Profile) Key(identity string) string {
	return fmt.Sprintf("%s%s", p.KeyPrefix, identity)
}

// Check evaluates this profile's thresholds against the limiter for one
// caller identity.
func (p Profile) Check(l *Limiter, identity string) Decision {
	return l.Check(p.Key(identity), p.PerMinute, p.PerHour)
}

// Allow is Check for programmatic callers: nil when allowed, otherwise a
// *types.RateLimitError carrying the policy name and retry hint.
func (p Profile) Allow(l *Limiter, identity string) error {
	d := p.Check(l, identity)
	if d.Allowed {
		return nil
	}
	return &types.RateLimitError{Policy: p.Name, RetryAfter: d.RetryAfter}
}

// PerIPProfile is the stricter policy applied to unauthenticated traffic.
func PerIPProfile(perMinute, perHour int) Profile {
	return Profile{
		Name:      "per-ip",
		KeyPrefix: "ip:",
		PerMinute: perMinute,
		PerHour:   perHour,
	}
}

// PerUserProfile is the looser policy applied to authenticated users.
func PerUserProfile(perMinute, perHour int) Profile {
	return Profile{
		Name:      "per-user",
		KeyPrefix: "user:",
		PerMinute: perMinute,
		PerHour:   perHour,
	}
}
