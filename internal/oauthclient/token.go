package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenData is the access/refresh token pair for one authorization
// server relationship, held in memory for the lifetime of the client
// process (and optionally persisted via TokenCache between runs).
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// TokenManager holds the current token for one authorization server and
// refreshes it on demand.
type TokenManager struct {
	TokenURL     string
	ClientID     string
	ClientSecret string

	mu  sync.Mutex
	cur *TokenData
}

// NewTokenManager returns a manager for tokens issued by tokenURL to the
// given client.
func NewTokenManager(tokenURL, clientID, clientSecret string) *TokenManager {
	return &TokenManager{TokenURL: tokenURL, ClientID: clientID, ClientSecret: clientSecret}
}

// ExchangeCode trades an authorization code for a token, per RFC 6749
// §4.1.3, with a PKCE code_verifier attached.
func (tm *TokenManager) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenData, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {tm.ClientID},
	}
	if tm.ClientSecret != "" {
		form.Set("client_secret", tm.ClientSecret)
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	td, err := postToken(ctx, tm.TokenURL, form)
	if err != nil {
		return nil, err
	}
	tm.mu.Lock()
	tm.cur = td
	tm.mu.Unlock()
	return td, nil
}

// SetToken seeds the manager with a previously obtained token, e.g. one
// loaded from the on-disk token cache.
func (tm *TokenManager) SetToken(td *TokenData) {
	tm.mu.Lock()
	tm.cur = td
	tm.mu.Unlock()
}

// Refresh exchanges the current refresh token for a new access token.
func (tm *TokenManager) Refresh(ctx context.Context) (*TokenData, error) {
	tm.mu.Lock()
	existing := tm.cur
	tm.mu.Unlock()
	if existing == nil || existing.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {existing.RefreshToken},
		"client_id":     {tm.ClientID},
	}
	if tm.ClientSecret != "" {
		form.Set("client_secret", tm.ClientSecret)
	}

	td, err := postToken(ctx, tm.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if td.RefreshToken == "" {
		td.RefreshToken = existing.RefreshToken
	}

	tm.mu.Lock()
	tm.cur = td
	tm.mu.Unlock()
	return td, nil
}

// GetValidToken returns an access token, refreshing first if the
// current one is within 5 minutes of expiry (or already expired).
func (tm *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	cur := tm.cur
	tm.mu.Unlock()
	if cur == nil {
		return "", fmt.Errorf("no token available")
	}

	if cur.ExpiresAt.IsZero() || time.Until(cur.ExpiresAt) > 5*time.Minute {
		return cur.AccessToken, nil
	}

	refreshed, err := tm.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("auto-refresh: %w", err)
	}
	return refreshed.AccessToken, nil
}

// Current returns the manager's in-memory token, or nil.
func (tm *TokenManager) Current() *TokenData {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.cur
}

func postToken(ctx context.Context, tokenURL string, form url.Values) (*TokenData, error) {
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	td := &TokenData{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken, TokenType: tr.TokenType}
	if tr.ExpiresIn > 0 {
		td.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if tr.Scope != "" {
		td.Scopes = splitScopes(tr.Scope)
	}
	return td, nil
}

func splitScopes(s string) []string {
	var out []string
	for _, part := range strings.Fields(s) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
