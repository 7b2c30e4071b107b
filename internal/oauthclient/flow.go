package oauthclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
)

// Flow drives one authorization-code-with-PKCE round trip against a
// single authorization server: build the browser URL, run a loopback
// server to catch the redirect, and exchange the resulting code.
type Flow struct {
	AuthServer   AuthServerMetadata
	ClientID     string
	ClientSecret string
	Scope        string

	stateStore *StateStore
	loopback   *loopbackServer
}

// NewFlow returns a Flow ready to authorize against as, as the given
// client.
func NewFlow(as AuthServerMetadata, clientID, clientSecret, scope string) *Flow {
	return &Flow{
		AuthServer:   as,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        scope,
		stateStore:   NewStateStore(),
	}
}

// OpenBrowserFunc is how the flow asks the user to visit a URL; it defaults
// to the OS-appropriate browser launcher but tests can override it.
type OpenBrowserFunc func(url string) error

// Authorize runs the full interactive flow: starts a loopback redirect
// server, opens the authorization URL in the user's browser, waits for
// the redirect, and exchanges the resulting code for a token.
func (f *Flow) Authorize(ctx context.Context, open OpenBrowserFunc) (*TokenData, error) {
	lb, err := newLoopbackServer()
	if err != nil {
		return nil, fmt.Errorf("start loopback server: %w", err)
	}
	defer lb.Close()
	f.loopback = lb

	codeVerifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}
	state, err := f.stateStore.Create(codeVerifier)
	if err != nil {
		return nil, fmt.Errorf("create oauth state: %w", err)
	}

	authorizeURL, err := f.buildAuthorizeURL(state, lb.RedirectURI(), codeVerifier)
	if err != nil {
		return nil, err
	}

	if open == nil {
		open = OpenSystemBrowser
	}
	if err := open(authorizeURL); err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}

	result, err := lb.WaitForCallback(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := f.stateStore.Validate(result.state)
	if !ok || entry.CodeVerifier != codeVerifier {
		return nil, fmt.Errorf("invalid or expired oauth state")
	}
	if result.err != "" {
		return nil, fmt.Errorf("authorization denied: %s", result.err)
	}

	tm := NewTokenManager(f.AuthServer.TokenEndpoint, f.ClientID, f.ClientSecret)
	return tm.ExchangeCode(ctx, result.code, lb.RedirectURI(), entry.CodeVerifier)
}

func (f *Flow) buildAuthorizeURL(state, redirectURI, codeVerifier string) (string, error) {
	u, err := url.Parse(f.AuthServer.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", f.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	if f.Scope != "" {
		q.Set("scope", f.Scope)
	}
	q.Set("code_challenge", CodeChallenge(codeVerifier))
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// loopbackServer runs a short-lived HTTP server on 127.0.0.1 to catch
// the authorization redirect, mirroring the original client's
// CreateLocalRedirect/WaitToken condition-variable wait as a channel.
type loopbackServer struct {
	ln     net.Listener
	srv    *http.Server
	result chan callbackResult
	once   sync.Once
}

type callbackResult struct {
	code  string
	state string
	err   string
}

func newLoopbackServer() (*loopbackServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	lb := &loopbackServer{ln: ln, result: make(chan callbackResult, 1)}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", lb.handleCallback)
	lb.srv = &http.Server{Handler: mux}
	go func() { _ = lb.srv.Serve(ln) }()
	return lb, nil
}

func (lb *loopbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := callbackResult{code: q.Get("code"), state: q.Get("state"), err: q.Get("error")}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.err != "" {
		_, _ = w.Write([]byte("<html><body>Authorization failed. You may close this window.</body></html>"))
	} else {
		_, _ = w.Write([]byte("<html><body>Authorization complete. You may close this window.</body></html>"))
	}
	lb.once.Do(func() { lb.result <- res })
}

// RedirectURI is the URL the authorization server should send the user
// back to.
func (lb *loopbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", lb.ln.Addr().(*net.TCPAddr).Port)
}

// WaitForCallback blocks until the redirect is received or ctx is done.
func (lb *loopbackServer) WaitForCallback(ctx context.Context) (callbackResult, error) {
	select {
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	case res := <-lb.result:
		return res, nil
	}
}

func (lb *loopbackServer) Close() {
	_ = lb.srv.Close()
}

// OpenSystemBrowser opens rawURL in the user's default browser, using
// the platform-appropriate launcher: xdg-open on Linux, open on macOS,
// rundll32's URL handler on Windows.
func OpenSystemBrowser(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	return nil
}
