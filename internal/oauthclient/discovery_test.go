package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscoverOAuthServerFollowsProtectedResourcePointer(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	srv = httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"resource":%q,"authorization_servers":[%q]}`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"issuer":%q,"authorization_endpoint":%q,"token_endpoint":%q}`,
			srv.URL, srv.URL+"/authorize", srv.URL+"/token")
	})

	as, err := DiscoverOAuthServer(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if as.TokenEndpoint != srv.URL+"/token" {
		t.Fatalf("unexpected token endpoint: %s", as.TokenEndpoint)
	}
}

func TestDynamicClientRegisterRequiresClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := DynamicClientRegister(context.Background(), srv.URL, "http://127.0.0.1/callback"); err == nil {
		t.Fatalf("expected error when dcr response omits client_id")
	}
}

func TestDynamicClientRegisterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"client_id":"abc123","client_secret":"shh"}`))
	}))
	defer srv.Close()

	dcr, err := DynamicClientRegister(context.Background(), srv.URL, "http://127.0.0.1/callback")
	if err != nil {
		t.Fatalf("DynamicClientRegister: %v", err)
	}
	if dcr.ClientID != "abc123" || dcr.ClientSecret != "shh" {
		t.Fatalf("unexpected dcr response: %+v", dcr)
	}
}
