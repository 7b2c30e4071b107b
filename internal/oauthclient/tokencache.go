package oauthclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// TokenCache persists one authorization server's DCR registration and
// token pair to disk, encrypted with an age X25519 identity, so a
// second run against the same server skips dynamic client registration
// and the browser round trip.
type TokenCache struct {
	dir string
}

// cacheEntry is the on-disk (pre-encryption) shape of one cached
// relationship, keyed by authorization server issuer in the caller.
type cacheEntry struct {
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret,omitempty"`
	Token        *TokenData `json:"token,omitempty"`
}

// NewTokenCache returns a cache rooted at dir (typically
// ~/.config/relaymcp).
func NewTokenCache(dir string) *TokenCache {
	return &TokenCache{dir: dir}
}

func (c *TokenCache) identityPath() string { return filepath.Join(c.dir, "identity") }

func (c *TokenCache) entryPath(issuer string) string {
	return filepath.Join(c.dir, "token-cache-"+hashIssuer(issuer)+".age")
}

// identity loads the local encryption identity, generating and
// persisting one on first use.
func (c *TokenCache) identity() (*age.X25519Identity, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	if data, err := os.ReadFile(c.identityPath()); err == nil {
		id, err := age.ParseX25519Identity(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, fmt.Errorf("parse cached identity: %w", err)
		}
		return id, nil
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.WriteFile(c.identityPath(), []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("persist identity: %w", err)
	}
	return id, nil
}

// Load returns the cached client registration and token for issuer, or
// (nil, false) if nothing is cached yet.
func (c *TokenCache) Load(issuer string) (clientID, clientSecret string, token *TokenData, ok bool) {
	id, err := c.identity()
	if err != nil {
		return "", "", nil, false
	}

	f, err := os.Open(c.entryPath(issuer))
	if err != nil {
		return "", "", nil, false
	}
	defer f.Close()

	r, err := age.Decrypt(f, id)
	if err != nil {
		return "", "", nil, false
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", "", nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(plaintext, &entry); err != nil {
		return "", "", nil, false
	}
	return entry.ClientID, entry.ClientSecret, entry.Token, true
}

// Save persists a client registration and its current token for issuer.
func (c *TokenCache) Save(issuer, clientID, clientSecret string, token *TokenData) error {
	id, err := c.identity()
	if err != nil {
		return err
	}

	entry := cacheEntry{ClientID: clientID, ClientSecret: clientSecret, Token: token}
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return fmt.Errorf("open age writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close age writer: %w", err)
	}

	if err := os.WriteFile(c.entryPath(issuer), buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("persist cache entry: %w", err)
	}
	return nil
}

// hashIssuer turns an issuer URL into a filesystem-safe token. Not
// cryptographic; on a collision two issuers share one cache file, and
// since an entry does not record its issuer, Load returns whichever
// issuer's entry was saved last.
func hashIssuer(issuer string) string {
	out := make([]byte, 0, len(issuer))
	for _, r := range issuer {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
