// Package azureblob lists landing zone containers through the Azure Blob
// Storage SDK using the SAS credential issued for the zone.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/nettransport"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

// DefaultEndpoint is the account URL template; {account} is replaced with
// the storage account from the credential.
const DefaultEndpoint = "https://{account}.blob.core.windows.net"

type Lister struct {
	endpoint string
	clients  *nettransport.Clients
	logger   *common.Logger
}

var _ ports.BlobLister = (*Lister)(nil)

func NewLister(clients *nettransport.Clients, endpoint string, logger *common.Logger) *Lister {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Lister{endpoint: endpoint, clients: clients, logger: logger}
}

// ListBlobs pages through the container lazily. Pages are only requested as
// the caller keeps iterating.
func (l *Lister) ListBlobs(ctx context.Context, cred domain.LandingZoneCredential, route domain.NetworkRoute) iter.Seq2[domain.BlobItem, error] {
	return func(yield func(domain.BlobItem, error) bool) {
		client, err := l.newClient(cred, route)
		if err != nil {
			yield(domain.BlobItem{}, err)
			return
		}

		pager := client.NewListBlobsFlatPager(cred.ContainerName, nil)
		pages := 0
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(domain.BlobItem{}, classify(err, cred))
				return
			}
			pages++
			if page.Segment == nil {
				continue
			}
			for _, item := range page.Segment.BlobItems {
				blob, ok := toBlobItem(item)
				if !ok {
					continue
				}
				if !yield(blob, nil) {
					return
				}
			}
		}
		l.logger.Debug().
			Str("account", cred.StorageAccountName).
			Str("container", cred.ContainerName).
			Int("pages", pages).
			Msg("container listed")
	}
}

func (l *Lister) newClient(cred domain.LandingZoneCredential, route domain.NetworkRoute) (*azblob.Client, error) {
	if cred.StorageAccountName == "" || cred.ContainerName == "" {
		return nil, fmt.Errorf("%w: credential has no storage account or container", domain.ErrUpstream)
	}
	httpClient, err := l.clients.For(route)
	if err != nil {
		return nil, err
	}

	endpoint := strings.ReplaceAll(l.endpoint, "{account}", cred.StorageAccountName)
	serviceURL, err := appendSASToken(endpoint, cred.SASToken)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithNoCredential(serviceURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
			Retry:     policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create blob client: %v", domain.ErrUpstream, err)
	}
	return client, nil
}

func appendSASToken(endpoint, sas string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: parse storage endpoint: %v", domain.ErrUpstream, err)
	}
	sas = strings.TrimPrefix(strings.TrimSpace(sas), "?")
	if sas == "" {
		return u.String(), nil
	}
	if u.RawQuery != "" {
		u.RawQuery = u.RawQuery + "&" + sas
	} else {
		u.RawQuery = sas
	}
	return u.String(), nil
}

func toBlobItem(item *container.BlobItem) (domain.BlobItem, bool) {
	if item == nil || item.Name == nil {
		return domain.BlobItem{}, false
	}
	blob := domain.BlobItem{Name: *item.Name}
	if p := item.Properties; p != nil {
		if p.CreationTime != nil {
			blob.CreationTime = p.CreationTime.UTC()
		}
		if p.LastModified != nil {
			blob.LastModified = p.LastModified.UTC()
		}
		if p.ContentLength != nil {
			blob.SizeBytes = *p.ContentLength
		}
	}
	return blob, true
}

func classify(err error, cred domain.LandingZoneCredential) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: list %s/%s: %s", domain.ErrAuthorization, cred.StorageAccountName, cred.ContainerName, respErr.ErrorCode)
		default:
			return fmt.Errorf("%w: list %s/%s: status %d %s", domain.ErrUpstream, cred.StorageAccountName, cred.ContainerName, respErr.StatusCode, respErr.ErrorCode)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// url.Error carries the request URL, which includes the SAS signature.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("%w: list %s/%s: %v", domain.ErrUpstream, cred.StorageAccountName, cred.ContainerName, err)
}
