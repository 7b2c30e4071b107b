package registry

import (
	"encoding/json"
	"testing"
)

func TestResolveArgsDefaultsAndRequired(t *testing.T) {
	tool := Tool{
		InputSchema: []PropertySpec{
			{Name: "query", Type: PropertyString, Required: true},
			{Name: "limit", Type: PropertyNumber, Required: false},
		},
	}
	tool.index()

	tests := []struct {
		name    string
		raw     map[string]string
		wantErr error
	}{
		{name: "all present", raw: map[string]string{"query": "hi", "limit": "5"}},
		{name: "optional missing defaults empty", raw: map[string]string{"query": "hi"}},
		{name: "required missing", raw: map[string]string{"limit": "5"}, wantErr: ErrMissingRequired},
		{name: "required empty", raw: map[string]string{"query": ""}, wantErr: ErrMissingRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := tool.ResolveArgs(tt.raw)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := args["limit"]; !ok {
				t.Fatalf("expected limit key present with default value")
			}
		})
	}
}

func TestEncodeResultScalar(t *testing.T) {
	tool := Tool{Name: "echo"}
	tool.index()

	raw := tool.EncodeResult([]ContentItem{{Text: "hello"}})

	var decoded struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StructuredContent json.RawMessage `json:"structuredContent"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Content) != 1 || decoded.Content[0].Text != "hello" {
		t.Fatalf("unexpected content: %+v", decoded.Content)
	}
	if decoded.StructuredContent != nil {
		t.Fatalf("scalar tool must not emit structuredContent, got %s", decoded.StructuredContent)
	}
}

func TestEncodeResultStructuredOnlyNumberAndStringSerialize(t *testing.T) {
	tool := Tool{
		Name: "lookup",
		OutputSchema: []PropertySpec{
			{Name: "count", Type: PropertyNumber},
			{Name: "label", Type: PropertyString},
			{Name: "blob", Type: PropertyObject},
		},
	}
	tool.index()

	raw := tool.EncodeResult([]ContentItem{{
		Fields: map[string]string{"count": "3", "label": "three", "blob": "ignored"},
	}})

	var decoded struct {
		StructuredContent struct {
			Content []map[string]json.RawMessage `json:"content"`
		} `json:"structuredContent"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.StructuredContent.Content) != 1 {
		t.Fatalf("expected one structured record, got %d", len(decoded.StructuredContent.Content))
	}
	fields := decoded.StructuredContent.Content[0]
	if string(fields["count"]) != "3" {
		t.Fatalf("expected unquoted number 3, got %s", fields["count"])
	}
	if string(fields["label"]) != `"three"` {
		t.Fatalf("expected quoted string, got %s", fields["label"])
	}
	if _, ok := fields["blob"]; ok {
		t.Fatalf("object-typed field must be omitted from structuredContent, got %s", fields["blob"])
	}
}

func TestListPayloadShape(t *testing.T) {
	r := New()
	r.Add(Tool{
		Name:        "echo",
		Description: "echoes",
		InputSchema: []PropertySpec{{Name: "text", Type: PropertyString, Required: true}},
	})

	payload := r.ListPayload()
	if len(payload) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(payload))
	}

	var rec map[string]json.RawMessage
	if err := json.Unmarshal(payload[0], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := rec["outputSchema"]; ok {
		t.Fatalf("tool with no output schema must omit outputSchema")
	}
	if _, ok := rec["inputSchema"]; !ok {
		t.Fatalf("expected inputSchema present")
	}
}
