package ports

import (
	"context"
	"iter"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
)

// BlobLister enumerates the container named by a landing zone credential.
// The sequence is single-pass; iteration stops after the first error.
type BlobLister interface {
	ListBlobs(ctx context.Context, cred domain.LandingZoneCredential, route domain.NetworkRoute) iter.Seq2[domain.BlobItem, error]
}
