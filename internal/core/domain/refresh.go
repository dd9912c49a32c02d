package domain

import "time"

// Cacheable is a credential stamped with the sandbox it was issued for.
// A zero Expiry means the value carries no expiry of its own.
type Cacheable interface {
	BoundSandbox() string
	Expiry() time.Time
}

// NeedsRefresh reports whether cached must be fetched again before it is used
// for sandbox at now.
func NeedsRefresh[C Cacheable](cached *C, sandbox string, now time.Time) bool {
	if cached == nil {
		return true
	}
	c := *cached
	if c.BoundSandbox() != sandbox {
		return true
	}
	if exp := c.Expiry(); !exp.IsZero() && !now.Before(exp) {
		return true
	}
	return false
}
