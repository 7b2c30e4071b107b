package httptransport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendCapturesSessionIDAndStreamsFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SessionIDHeader, "sess-1")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
	}))
	defer srv.Close()

	tr := New(srv.URL, nil)
	if err := tr.Send([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case frame := <-tr.Frames():
		if string(frame) != `{"jsonrpc":"2.0","id":1,"result":{}}` {
			t.Fatalf("unexpected frame: %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame")
	}

	tr.sessionMu.Lock()
	sid := tr.sessionID
	tr.sessionMu.Unlock()
	if sid != "sess-1" {
		t.Fatalf("expected captured session id, got %q", sid)
	}
}

func TestSendAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(srv.URL, func() string { return "tok123" })
	if err := tr.Send([]byte(`{}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("expected bearer token attached, got %q", gotAuth)
	}
}

func TestSendReturnsErrAuthRequiredOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := New(srv.URL, nil)
	if err := tr.Send([]byte(`{}`)); err != ErrAuthRequired {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}
