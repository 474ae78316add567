package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantText string
		wantType string
		wantOps  int
	}{
		{name: "empty body", body: ""},
		{name: "plain text", body: "Your ROAS is 3.2", wantText: "Your ROAS is 3.2", wantType: "text"},
		{name: "json string", body: `"  Budget looks fine  "`, wantText: "Budget looks fine", wantType: "text"},
		{
			name:     "string with trailing operations",
			body:     `Pausing the ad set now. [{"method":"POST","endpoint":"/123","params":{"status":"PAUSED"}}]`,
			wantText: "Pausing the ad set now.",
			wantType: "text",
			wantOps:  1,
		},
		{
			name:     "object with output",
			body:     `{"output":"Scale it","type":"recommendation","operations":[{"a":1},{"b":2}]}`,
			wantText: "Scale it",
			wantType: "recommendation",
			wantOps:  2,
		},
		{
			name:     "cleanedText wins over output",
			body:     `{"output":"raw","cleanedText":"clean"}`,
			wantText: "clean",
			wantType: "text",
		},
		{
			name:     "non string fields are skipped",
			body:     `{"message":{"nested":true},"content":"from content"}`,
			wantText: "from content",
			wantType: "text",
		},
		{name: "array wraps object", body: `[{"response":"first"},{"response":"second"}]`, wantText: "first", wantType: "text"},
		{name: "object without text", body: `{"status":"ok"}`},
		{name: "whitespace only", body: `{"text":"   "}`},
		{name: "empty array", body: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.body))
			assert.True(t, got.Success)
			assert.Empty(t, got.ErrorMessage)
			assert.Equal(t, tt.wantText, got.AIResponse)
			assert.Equal(t, tt.wantType, got.MessageType)
			assert.Len(t, got.Operations, tt.wantOps)
		})
	}
}

func TestNormalize_MalformedOperationsKeepProse(t *testing.T) {
	got := Normalize([]byte(`Done [{not json}]`))
	assert.True(t, got.Success)
	assert.Equal(t, "Done", got.AIResponse)
	assert.Empty(t, got.Operations)
}
