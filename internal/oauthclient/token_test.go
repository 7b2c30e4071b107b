package oauthclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestExchangeCodePopulatesToken(t *testing.T) {
	srv := newTokenServer(t, `{"access_token":"at1","refresh_token":"rt1","token_type":"Bearer","expires_in":3600,"scope":"tools logging"}`)
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "client-1", "")
	td, err := tm.ExchangeCode(context.Background(), "auth-code", "http://127.0.0.1/callback", "verifier")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if td.AccessToken != "at1" || td.RefreshToken != "rt1" {
		t.Fatalf("unexpected token: %+v", td)
	}
	if len(td.Scopes) != 2 {
		t.Fatalf("expected 2 scopes, got %v", td.Scopes)
	}
	if tm.Current().AccessToken != "at1" {
		t.Fatalf("expected manager to retain the exchanged token")
	}
}

func TestGetValidTokenRefreshesNearExpiry(t *testing.T) {
	srv := newTokenServer(t, `{"access_token":"at2","refresh_token":"rt2","token_type":"Bearer","expires_in":3600}`)
	defer srv.Close()

	tm := NewTokenManager(srv.URL, "client-1", "")
	tm.SetToken(&TokenData{AccessToken: "stale", RefreshToken: "rt1", ExpiresAt: time.Now().Add(time.Minute)})

	token, err := tm.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if token != "at2" {
		t.Fatalf("expected refreshed token at2, got %s", token)
	}
}

func TestGetValidTokenSkipsRefreshWhenFarFromExpiry(t *testing.T) {
	tm := NewTokenManager("http://unused.invalid", "client-1", "")
	tm.SetToken(&TokenData{AccessToken: "fresh", ExpiresAt: time.Now().Add(time.Hour)})

	token, err := tm.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken: %v", err)
	}
	if token != "fresh" {
		t.Fatalf("expected no refresh to occur, got %s", token)
	}
}

func TestRefreshWithoutRefreshTokenFails(t *testing.T) {
	tm := NewTokenManager("http://unused.invalid", "client-1", "")
	tm.SetToken(&TokenData{AccessToken: "at"})

	if _, err := tm.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error refreshing without a refresh token")
	}
}
