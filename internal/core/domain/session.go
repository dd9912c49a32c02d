package domain

import "time"

// NetworkRoute selects how outbound calls leave the process for one session.
type NetworkRoute struct {
	UseProxy bool
}

// CredentialCache is the per-session cache of upstream credentials. Cached
// values are replaced, never mutated, so slots compare by pointer.
type CredentialCache struct {
	Token       *BearerToken
	Source      *LandingZoneCredential
	Destination *LandingZoneCredential
}

func (c *CredentialCache) For(kind ZoneKind) *LandingZoneCredential {
	switch kind {
	case ZoneSource:
		return c.Source
	case ZoneDestination:
		return c.Destination
	default:
		return nil
	}
}

func (c *CredentialCache) Set(kind ZoneKind, cred *LandingZoneCredential) {
	switch kind {
	case ZoneSource:
		c.Source = cred
	case ZoneDestination:
		c.Destination = cred
	}
}

// Reset drops every cached credential.
func (c *CredentialCache) Reset() {
	*c = CredentialCache{}
}

// Apply copies into c each slot that differs between before and after. Slots
// the writer left alone keep whatever c already holds.
func (c *CredentialCache) Apply(before, after CredentialCache) {
	if after.Token != before.Token {
		c.Token = after.Token
	}
	if after.Source != before.Source {
		c.Source = after.Source
	}
	if after.Destination != before.Destination {
		c.Destination = after.Destination
	}
}

type Session struct {
	ID          string
	SandboxName string
	Route       NetworkRoute
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Cache       CredentialCache
}

func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(s.LastSeenAt.Add(ttl))
}
