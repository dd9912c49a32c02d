package usecase

import (
	"context"
	"iter"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

type ListingFormatter struct {
	lister ports.BlobLister
}

func NewListingFormatter(lister ports.BlobLister) *ListingFormatter {
	return &ListingFormatter{lister: lister}
}

// ListZone maps the container listing to display records in listing order.
// The sequence ends after the first error.
func (f *ListingFormatter) ListZone(ctx context.Context, cred domain.LandingZoneCredential, route domain.NetworkRoute) iter.Seq2[domain.BlobRecord, error] {
	return func(yield func(domain.BlobRecord, error) bool) {
		for item, err := range f.lister.ListBlobs(ctx, cred, route) {
			if err != nil {
				yield(domain.BlobRecord{}, err)
				return
			}
			if !yield(domain.NewBlobRecord(item), nil) {
				return
			}
		}
	}
}

// Collect drains seq. On error no records are returned.
func Collect(seq iter.Seq2[domain.BlobRecord, error]) ([]domain.BlobRecord, error) {
	records := make([]domain.BlobRecord, 0)
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
