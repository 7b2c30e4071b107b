// Package oauthclient implements the client side of OAuth 2.1
// authorization: metadata discovery, dynamic client registration, PKCE,
// the loopback redirect callback, and token exchange/refresh.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ProtectedResourceMetadata is the document served from
// /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// AuthServerMetadata is the document served from
// /.well-known/oauth-authorization-server.
type AuthServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	CodeChallengeMethods  []string `json:"code_challenge_methods_supported,omitempty"`
}

// DCRResponse is the result of Dynamic Client Registration.
type DCRResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
}

// DiscoverOAuthServer resolves the authorization server metadata for an
// MCP server at serverURL: it tries the protected-resource document
// first to locate the authorization server, then fetches that server's
// own metadata document.
func DiscoverOAuthServer(ctx context.Context, serverURL string) (*AuthServerMetadata, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	origin := parsed.Scheme + "://" + parsed.Host

	authServerURL := origin
	prURL := origin + "/.well-known/oauth-protected-resource"
	pr, err := fetchJSON[ProtectedResourceMetadata](ctx, prURL)
	if err == nil && len(pr.AuthorizationServers) > 0 {
		authServerURL = strings.TrimRight(pr.AuthorizationServers[0], "/")
	}

	asURL := authServerURL + "/.well-known/oauth-authorization-server"
	as, err := fetchJSON[AuthServerMetadata](ctx, asURL)
	if err != nil {
		return nil, fmt.Errorf("fetch auth server metadata from %s: %w", asURL, err)
	}

	if as.AuthorizationEndpoint == "" || as.TokenEndpoint == "" {
		return nil, fmt.Errorf("incomplete auth server metadata: missing authorization or token endpoint")
	}

	return as, nil
}

// DynamicClientRegister registers this client as a public OAuth client
// with the given callback URL, per RFC 7591.
func DynamicClientRegister(ctx context.Context, registrationEndpoint, callbackURL string) (*DCRResponse, error) {
	body := map[string]any{
		"client_name":                "relaymcp",
		"redirect_uris":              []string{callbackURL},
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal dcr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build dcr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dcr request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read dcr response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dcr failed (%d): %s", resp.StatusCode, respBody)
	}

	var dcr DCRResponse
	if err := json.Unmarshal(respBody, &dcr); err != nil {
		return nil, fmt.Errorf("parse dcr response: %w", err)
	}

	if dcr.ClientID == "" {
		return nil, fmt.Errorf("dcr response missing client_id")
	}

	return &dcr, nil
}

func fetchJSON[T any](ctx context.Context, url string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &result, nil
}
