package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
			"exact": map[string]any{"type": "boolean"},
		},
		"required": []any{"query"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"query": "x", "limit": 3}, false},
		{"json number for integer", map[string]any{"query": "x", "limit": float64(3)}, false},
		{"fractional for integer", map[string]any{"query": "x", "limit": 3.5}, true},
		{"missing required", map[string]any{"limit": 3}, true},
		{"wrong type", map[string]any{"query": 42}, true},
		{"extra fields allowed", map[string]any{"query": "x", "other": "y"}, false},
		{"nil value passes", map[string]any{"query": "x", "exact": nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateParametersRequiredAsStrings(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"query": "x"}, schema))
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		Query   string   `json:"query" description:"Search query"`
		Limit   int      `json:"limit,omitempty"`
		Tags    []string `json:"tags,omitempty"`
		private string
		Skipped string   `json:"-"`
	}

	schema := CreateSchema(args{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.Contains(t, props, "tags")
	assert.NotContains(t, props, "private")
	assert.NotContains(t, props, "Skipped")

	query := props["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search query", query["description"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])

	assert.Equal(t, []string{"query"}, schema["required"])
}
