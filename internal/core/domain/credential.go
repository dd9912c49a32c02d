package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ZoneKind string

const (
	ZoneSource      ZoneKind = "source"
	ZoneDestination ZoneKind = "destination"
)

func ParseZoneKind(raw string) (ZoneKind, error) {
	switch ZoneKind(strings.ToLower(strings.TrimSpace(raw))) {
	case ZoneSource:
		return ZoneSource, nil
	case ZoneDestination:
		return ZoneDestination, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidZoneKind, raw)
	}
}

// QueryType is the value of the credential endpoint's "type" parameter.
func (k ZoneKind) QueryType() string {
	switch k {
	case ZoneSource:
		return "user_drop_zone"
	case ZoneDestination:
		return "dlz_destination"
	default:
		return ""
	}
}

// LandingZoneCredential grants SAS-scoped access to one landing zone container.
type LandingZoneCredential struct {
	StorageAccountName string    `json:"storage_account_name"`
	ContainerName      string    `json:"container_name"`
	SASToken           string    `json:"sas_token"`
	SASURI             string    `json:"sas_uri,omitempty"`
	SandboxName        string    `json:"sandbox_name"`
	Kind               ZoneKind  `json:"kind"`
	ExpiresAt          time.Time `json:"expires_at,omitzero"`
}

func (c LandingZoneCredential) BoundSandbox() string { return c.SandboxName }

// Expiry is zero unless the SAS token carried a signed expiry.
func (c LandingZoneCredential) Expiry() time.Time { return c.ExpiresAt }

var sasTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z",
	"2006-01-02",
}

// SASExpiry returns the signed expiry ("se") of a SAS token, or the zero time
// when the token has none or it cannot be parsed.
func SASExpiry(sas string) time.Time {
	values, err := url.ParseQuery(strings.TrimPrefix(sas, "?"))
	if err != nil {
		return time.Time{}
	}
	raw := values.Get("se")
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range sasTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
