package domain

import "errors"

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrAuthentication   = errors.New("authentication failed")
	ErrAuthorization    = errors.New("authorization failed")
	ErrUpstream         = errors.New("upstream failure")
	ErrUnknownSandbox   = errors.New("unknown sandbox")
	ErrInvalidSandbox   = errors.New("invalid sandbox name")
	ErrInvalidZoneKind  = errors.New("invalid zone kind")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrProxyUnavailable = errors.New("proxy routing is not configured")
)
