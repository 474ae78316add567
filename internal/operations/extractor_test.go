package operations

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PauseScenario(t *testing.T) {
	text := "Pause it.\n[{\"method\":\"post\",\"endpoint\":\"/123456789\",\"params\":{\"status\":\"PAUSED\"}}]"

	ops := Extract(text)

	want := []Operation{{
		Method:   "POST",
		Endpoint: "/123456789",
		Params:   map[string]any{"status": "PAUSED"},
	}}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, HasExecutable(text))
}

func TestExtract_FiltersInvalidElements(t *testing.T) {
	text := `Here is the plan:
[
  {"method": "post", "endpoint": "/111", "params": {"daily_budget": 5000}},
  "not an object",
  {"method": "FETCH", "endpoint": "/222"},
  {"method": "DELETE", "endpoint": "campaigns/333"},
  {"method": "PATCH", "endpoint": "/444", "params": null},
  {"method": "PATCH", "endpoint": "/555", "params": ["a"]},
  {"method": "PUT", "endpoint": "/666", "params": "status=ACTIVE"},
  {"method": "get", "endpoint": "/777/insights"}
]`

	ops := Extract(text)

	require.Len(t, ops, 2)
	assert.Equal(t, "POST", ops[0].Method)
	assert.Equal(t, "/111", ops[0].Endpoint)
	assert.Equal(t, float64(5000), ops[0].Params["daily_budget"])
	assert.Equal(t, Operation{Method: "GET", Endpoint: "/777/insights"}, ops[1])
}

func TestExtract_DeduplicatesByMethodAndEndpoint(t *testing.T) {
	text := `[{"method":"post","endpoint":"/1","params":{"status":"PAUSED"}},{"method":"POST","endpoint":"/1"}]
and again [{"method":"POST","endpoint":"/1"},{"method":"DELETE","endpoint":"/1"}]`

	ops := Extract(text)

	require.Len(t, ops, 2)
	assert.Equal(t, "POST /1", ops[0].Key())
	assert.Equal(t, map[string]any{"status": "PAUSED"}, ops[0].Params)
	assert.Equal(t, "DELETE /1", ops[1].Key())
}

func TestExtract_ObjectFallbackOnlyWithoutArrays(t *testing.T) {
	t.Run("objects used when no array yields", func(t *testing.T) {
		text := `First {"method": "post", "endpoint": "/10"} then {"method":"POST","endpoint":"/10"} and {"method":"delete","endpoint":"/20"}`

		ops := Extract(text)

		require.Len(t, ops, 2)
		assert.Equal(t, "POST /10", ops[0].Key())
		assert.Equal(t, "DELETE /20", ops[1].Key())
	})

	t.Run("objects ignored when an array yields", func(t *testing.T) {
		text := `[{"method":"post","endpoint":"/1"}] plus {"method":"delete","endpoint":"/2"}`

		ops := Extract(text)

		require.Len(t, ops, 1)
		assert.Equal(t, "POST /1", ops[0].Key())
	})
}

func TestExtract_NormalizesEscapedWhitespace(t *testing.T) {
	text := "[{\\n\"method\":\t\"patch\",\r\n \"endpoint\": \"/42\"\\n}]"

	ops := Extract(text)

	require.Len(t, ops, 1)
	assert.Equal(t, Operation{Method: "PATCH", Endpoint: "/42"}, ops[0])
}

func TestExtract_NoJSON(t *testing.T) {
	for _, text := range []string{
		"",
		"Your campaign is doing fine, no changes needed.",
		"Spend went from [10] to {20} this week",
		`[{"method": "post", "endpoint": "/1"`,
	} {
		assert.Empty(t, Extract(text), text)
		assert.False(t, HasExecutable(text), text)
	}
}

func TestExtract_RoundTrip(t *testing.T) {
	text := `Do these:
[{"method":"post","endpoint":"/1","params":{"status":"PAUSED"}},{"method":"delete","endpoint":"/2"},{"method":"post","endpoint":"/3","params":{"daily_budget":2500}}]`

	first := Extract(text)
	require.Len(t, first, 3)

	raw, err := json.Marshal(first)
	require.NoError(t, err)

	second := Extract(string(raw))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-extraction changed the result (-first +second):\n%s", diff)
	}
}

func TestHasExecutable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"array hit", `ok [{"method":"get","endpoint":"/9"}]`, true},
		{"object hit", `ok {"method":"get","endpoint":"/9"}`, true},
		{"invalid method", `[{"method":"OPTIONS","endpoint":"/9"}]`, false},
		{"non numeric path", `{"method":"GET","endpoint":"/me"}`, false},
		{"second element valid", `[{"method":"x","endpoint":"/1"},{"method":"put","endpoint":"/2"}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasExecutable(tt.text))
		})
	}
}
