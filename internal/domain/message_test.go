package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseRequestJSON(t *testing.T) {
	req := ResponseRequest{
		Model:    "gpt-4.1-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		TextFormat: &TextFormat{
			Name:   "answer",
			Schema: json.RawMessage(`{"type":"object"}`),
			Strict: true,
		},
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "gpt-4.1-mini",
		"messages": [{"role": "user", "content": "hello"}],
		"text_format": {"name": "answer", "schema": {"type": "object"}, "strict": true}
	}`, string(data))
}

func TestRoleConstants(t *testing.T) {
	roles := map[string]string{
		"system":    RoleSystem,
		"developer": RoleDeveloper,
		"user":      RoleUser,
		"assistant": RoleAssistant,
	}
	for expected, got := range roles {
		assert.Equal(t, expected, got)
	}
}
