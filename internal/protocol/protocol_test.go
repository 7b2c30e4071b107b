package protocol

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeClassification(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		hasMethod  bool
		hasID      bool
	}{
		{name: "request", raw: `{"jsonrpc":"2.0","id":1,"method":"ping"}`, hasMethod: true, hasID: true},
		{name: "notification", raw: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, hasMethod: true, hasID: false},
		{name: "response", raw: `{"jsonrpc":"2.0","id":1,"result":{}}`, hasMethod: false, hasID: true},
		{name: "null id notification-shaped", raw: `{"jsonrpc":"2.0","id":null,"method":"ping"}`, hasMethod: true, hasID: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(tt.raw), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.HasMethod() != tt.hasMethod {
				t.Errorf("HasMethod() = %v, want %v", env.HasMethod(), tt.hasMethod)
			}
			if env.HasID() != tt.hasID {
				t.Errorf("HasID() = %v, want %v", env.HasID(), tt.hasID)
			}
		})
	}
}

func TestNewError(t *testing.T) {
	err := NewError(CodeMethodNotFound, "Method not found")
	if err.Error() != "Method not found" {
		t.Fatalf("unexpected error message: %s", err.Error())
	}
	if err.Code != -32601 {
		t.Fatalf("unexpected code: %d", err.Code)
	}
}
