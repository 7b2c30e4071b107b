package oauthclient

import (
	"path/filepath"
	"testing"
)

func TestTokenCacheSaveAndLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relaymcp")
	c := NewTokenCache(dir)

	token := &TokenData{AccessToken: "at1", RefreshToken: "rt1", TokenType: "Bearer"}
	if err := c.Save("https://issuer.example", "client-1", "secret-1", token); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clientID, clientSecret, loaded, ok := c.Load("https://issuer.example")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if clientID != "client-1" || clientSecret != "secret-1" {
		t.Fatalf("unexpected client credentials: %s / %s", clientID, clientSecret)
	}
	if loaded.AccessToken != "at1" {
		t.Fatalf("unexpected loaded token: %+v", loaded)
	}
}

func TestTokenCacheLoadMissReturnsFalse(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relaymcp")
	c := NewTokenCache(dir)

	if _, _, _, ok := c.Load("https://never-saved.example"); ok {
		t.Fatalf("expected cache miss for an issuer never saved")
	}
}

func TestTokenCacheReusesPersistedIdentity(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relaymcp")
	c1 := NewTokenCache(dir)
	id1, err := c1.identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	c2 := NewTokenCache(dir)
	id2, err := c2.identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id1.String() != id2.String() {
		t.Fatalf("expected the identity file to be reused across TokenCache instances")
	}
}

func TestHashIssuerIsFilesystemSafe(t *testing.T) {
	h := hashIssuer("https://auth.example.com:8443/oidc")
	for _, r := range h {
		isSafe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !isSafe {
			t.Fatalf("unsafe character %q in hashed issuer %q", r, h)
		}
	}
}
