package platform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/dlzbrowser/internal/adapters/nettransport"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/domain"
	"github.com/atvirokodosprendimai/dlzbrowser/internal/core/ports"
)

var testSecret = domain.TenantSecret{
	ClientID:     "client-1",
	ClientSecret: "s3cret",
	APIKey:       "api-key-1",
	OrgID:        "ORG@AdobeOrg",
	SandboxName:  "qa",
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(nettransport.NewStatic(srv.Client()),
		WithIdentityURL(srv.URL+"/ims/token/v3"),
		WithPlatformURL(srv.URL+"/"),
		WithRateLimit(0),
	)
}

func TestIssueTokenSendsClientCredentialsGrant(t *testing.T) {
	var form url.Values
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ims/token/v3", r.URL.Path)
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer","expires_in":86399}`))
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv).IssueToken(context.Background(), testSecret, domain.NetworkRoute{})
	require.NoError(t, err)
	assert.Equal(t, ports.TokenResponse{AccessToken: "abc", TokenType: "bearer", ExpiresIn: 86399}, got)

	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "client-1", form.Get("client_id"))
	assert.Equal(t, "s3cret", form.Get("client_secret"))
	assert.Equal(t, DefaultScope, form.Get("scope"))
}

func TestIssueTokenRejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"invalid client_secret parameter"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).IssueToken(context.Background(), testSecret, domain.NetworkRoute{})
	require.ErrorIs(t, err, domain.ErrAuthentication)
	assert.True(t, IsAPIStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "invalid client_secret parameter")
}

func TestIssueTokenUnparseablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).IssueToken(context.Background(), testSecret, domain.NetworkRoute{})
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestIssueTokenTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.IssueToken(context.Background(), testSecret, domain.NetworkRoute{})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestIssueTokenProxyRouteWithoutProxy(t *testing.T) {
	clients, err := nettransport.New(nettransport.Config{})
	require.NoError(t, err)
	c := NewClient(clients, WithRateLimit(0))

	_, err = c.IssueToken(context.Background(), testSecret, domain.NetworkRoute{UseProxy: true})
	assert.ErrorIs(t, err, domain.ErrProxyUnavailable)
}

func TestIssueCredentialSendsHeadersAndKind(t *testing.T) {
	tests := []struct {
		kind domain.ZoneKind
		want string
	}{
		{kind: domain.ZoneSource, want: "user_drop_zone"},
		{kind: domain.ZoneDestination, want: "dlz_destination"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var got *http.Request
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Clone(context.Background())
				_, _ = w.Write([]byte(`{"containerName":"dlz-user-container","SASToken":"sv=2020-04-08&sr=c&sig=x","storageAccountName":"dlblobstore1","SASUri":"https://dlblobstore1.blob.core.windows.net/dlz-user-container?sv=2020-04-08&sr=c&sig=x"}`))
			}))
			defer srv.Close()

			cred, err := newTestClient(t, srv).IssueCredential(context.Background(), ports.CredentialRequest{
				Secret:      testSecret,
				AccessToken: "tok",
				SandboxName: "qa",
				Kind:        tt.kind,
			})
			require.NoError(t, err)

			require.NotNil(t, got)
			assert.Equal(t, http.MethodGet, got.Method)
			assert.Equal(t, credentialsPath, got.URL.Path)
			assert.Equal(t, tt.want, got.URL.Query().Get("type"))
			assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
			assert.Equal(t, "api-key-1", got.Header.Get("x-api-key"))
			assert.Equal(t, "ORG@AdobeOrg", got.Header.Get("x-gw-ims-org-id"))
			assert.Equal(t, "qa", got.Header.Get("x-sandbox-name"))
			assert.Equal(t, "no-cache", got.Header.Get("Cache-Control"))

			assert.Equal(t, "dlblobstore1", cred.StorageAccountName)
			assert.Equal(t, "dlz-user-container", cred.ContainerName)
			assert.Equal(t, "sv=2020-04-08&sr=c&sig=x", cred.SASToken)
			assert.Equal(t, "qa", cred.SandboxName)
			assert.Equal(t, tt.kind, cred.Kind)
		})
	}
}

func TestIssueCredentialStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{status: http.StatusUnauthorized, body: `{"title":"Oauth token is not valid"}`, want: domain.ErrAuthorization},
		{status: http.StatusForbidden, body: `{"message":"forbidden"}`, want: domain.ErrAuthorization},
		{status: http.StatusInternalServerError, body: `boom`, want: domain.ErrUpstream},
		{status: http.StatusOK, body: `{"containerName":"c"}`, want: domain.ErrUpstream},
		{status: http.StatusOK, body: `not json`, want: domain.ErrUpstream},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))

		_, err := newTestClient(t, srv).IssueCredential(context.Background(), ports.CredentialRequest{
			Secret:      testSecret,
			AccessToken: "tok",
			SandboxName: "qa",
			Kind:        domain.ZoneSource,
		})
		srv.Close()
		assert.ErrorIs(t, err, tt.want, "status %d body %s", tt.status, tt.body)
	}
}

func TestIssueCredentialRejectsUnknownKind(t *testing.T) {
	c := NewClient(nettransport.NewStatic(http.DefaultClient))
	_, err := c.IssueCredential(context.Background(), ports.CredentialRequest{Kind: "archive"})
	assert.ErrorIs(t, err, domain.ErrInvalidZoneKind)
}

func TestErrorMessageTruncatesRawBodies(t *testing.T) {
	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, errorMessage(long), maxErrorSnippet)
	assert.Equal(t, "bad scope", errorMessage([]byte(`{"error":"invalid_scope","error_description":"bad scope"}`)))
}
