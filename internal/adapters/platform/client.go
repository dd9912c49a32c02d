// Package platform talks to the vendor identity service and the landing
// zone credential API.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/nettransport"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/common"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

const (
	DefaultIdentityURL = "https://ims-na1.adobelogin.com/ims/token/v3"
	DefaultPlatformURL = "https://platform.adobe.io"
	DefaultScope       = "openid,AdobeID,read_organizations,additional_info.projectedProductContext,session"
	DefaultRateLimit   = 10 // requests per second

	credentialsPath = "/data/foundation/connectors/landingzone/credentials"
	maxBodySize     = 1 << 20
	maxErrorSnippet = 512
)

// APIError describes a non-2xx answer from an upstream endpoint.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

type Client struct {
	identityURL string
	platformURL string
	scope       string
	clients     *nettransport.Clients
	limiter     *rate.Limiter
	logger      *common.Logger
}

type Option func(*Client)

func WithIdentityURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.identityURL = u
		}
	}
}

func WithPlatformURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.platformURL = strings.TrimRight(u, "/")
		}
	}
}

func WithScope(scope string) Option {
	return func(c *Client) {
		if scope != "" {
			c.scope = scope
		}
	}
}

func WithLogger(logger *common.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit caps outbound calls per second across all sessions. Zero or
// negative disables throttling.
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

func NewClient(clients *nettransport.Clients, opts ...Option) *Client {
	c := &Client{
		identityURL: DefaultIdentityURL,
		platformURL: DefaultPlatformURL,
		scope:       DefaultScope,
		clients:     clients,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ ports.TokenIssuer      = (*Client)(nil)
	_ ports.CredentialIssuer = (*Client)(nil)
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IssueToken performs a client credentials grant against the identity service.
func (c *Client) IssueToken(ctx context.Context, secret domain.TenantSecret, route domain.NetworkRoute) (ports.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", secret.ClientID)
	form.Set("client_secret", secret.ClientSecret)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.identityURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.TokenResponse{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, route)
	if err != nil {
		return ports.TokenResponse{}, err
	}
	if status < 200 || status >= 300 {
		return ports.TokenResponse{}, fmt.Errorf("%w: %w", domain.ErrAuthentication, &APIError{
			StatusCode: status,
			Endpoint:   "identity",
			Message:    errorMessage(body),
		})
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ports.TokenResponse{}, fmt.Errorf("%w: decode token response: %v", domain.ErrAuthentication, err)
	}
	if decoded.AccessToken == "" {
		return ports.TokenResponse{}, fmt.Errorf("%w: token response has no access_token", domain.ErrAuthentication)
	}

	c.logger.Debug().Str("sandbox", secret.SandboxName).Int64("expires_in", decoded.ExpiresIn).Msg("identity token granted")
	return ports.TokenResponse{
		AccessToken: decoded.AccessToken,
		TokenType:   decoded.TokenType,
		ExpiresIn:   decoded.ExpiresIn,
	}, nil
}

type credentialResponse struct {
	StorageAccountName string `json:"storageAccountName"`
	ContainerName      string `json:"containerName"`
	SASToken           string `json:"SASToken"`
	SASURI             string `json:"SASUri"`
}

// IssueCredential fetches the SAS credential of one landing zone.
func (c *Client) IssueCredential(ctx context.Context, in ports.CredentialRequest) (domain.LandingZoneCredential, error) {
	queryType := in.Kind.QueryType()
	if queryType == "" {
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: %q", domain.ErrInvalidZoneKind, in.Kind)
	}

	endpoint := c.platformURL + credentialsPath + "?" + url.Values{"type": {queryType}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.LandingZoneCredential{}, fmt.Errorf("create credential request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+in.AccessToken)
	req.Header.Set("x-api-key", in.Secret.APIKey)
	req.Header.Set("x-gw-ims-org-id", in.Secret.OrgID)
	req.Header.Set("x-sandbox-name", in.SandboxName)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req, in.Route)
	if err != nil {
		return domain.LandingZoneCredential{}, err
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: %w", domain.ErrAuthorization, &APIError{
			StatusCode: status,
			Endpoint:   "landing zone credentials",
			Message:    errorMessage(body),
		})
	case status < 200 || status >= 300:
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: %w", domain.ErrUpstream, &APIError{
			StatusCode: status,
			Endpoint:   "landing zone credentials",
			Message:    errorMessage(body),
		})
	}

	var decoded credentialResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: decode credential response: %v", domain.ErrUpstream, err)
	}
	if decoded.StorageAccountName == "" || decoded.ContainerName == "" || decoded.SASToken == "" {
		return domain.LandingZoneCredential{}, fmt.Errorf("%w: credential response is missing storage account, container or SAS token", domain.ErrUpstream)
	}

	return domain.LandingZoneCredential{
		StorageAccountName: decoded.StorageAccountName,
		ContainerName:      decoded.ContainerName,
		SASToken:           decoded.SASToken,
		SASURI:             decoded.SASURI,
		SandboxName:        in.SandboxName,
		Kind:               in.Kind,
	}, nil
}

func (c *Client) do(req *http.Request, route domain.NetworkRoute) ([]byte, int, error) {
	client, err := c.clients.For(route)
	if err != nil {
		return nil, 0, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, 0, fmt.Errorf("%w: rate limiter: %v", domain.ErrUpstream, err)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %v", domain.ErrUpstream, req.Method, req.URL.Host, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %s response: %v", domain.ErrUpstream, req.URL.Host, err)
	}
	return body, resp.StatusCode, nil
}

// errorMessage pulls a readable message out of an error payload without
// echoing large or unexpected bodies.
func errorMessage(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Title            string `json:"title"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.ErrorDescription, payload.Message, payload.Title, payload.Error} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorSnippet {
		msg = msg[:maxErrorSnippet]
	}
	return msg
}

// IsAPIStatus reports whether err carries an upstream status code equal to status.
func IsAPIStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
