package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-agent/qos-advisor/internal/llm/types"
)

type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	return p.reply, p.err
}

func (p *scriptedProvider) Model() string { return "scripted" }

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"intent": "status"}`, `{"intent": "status"}`},
		{
			"fenced",
			"Here you go:\n```json\n{\"intent\": \"allocation\"}\n```\nHope that helps!",
			`{"intent": "allocation"}`,
		},
		{
			"nested braces",
			`The answer is {"a": {"b": 1}, "c": "x"} as requested.`,
			`{"a": {"b": 1}, "c": "x"}`,
		},
		{
			"braces inside strings",
			`{"text": "a } inside", "n": 2}`,
			`{"text": "a } inside", "n": 2}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ExtractJSON(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := ExtractJSON("no json here")
	assert.Error(t, err)
	_, err = ExtractJSON(`{"unbalanced": `)
	assert.Error(t, err)
}

func TestGenerateJSON(t *testing.T) {
	a := New(&scriptedProvider{reply: "Sure!\n```json\n{\"intent\": \"allocation\", \"target_filter\": \"pi5\"}\n```"})

	var out types.RequestClassification
	err := a.GenerateJSON(context.Background(), "classify", []types.Message{{Role: types.RoleUser, Content: "x"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "allocation", out.Intent)
	require.NotNil(t, out.TargetFilter)
	assert.Equal(t, "pi5", *out.TargetFilter)
}

func TestGenerateJSONPropagatesProviderError(t *testing.T) {
	a := New(&scriptedProvider{err: errors.New("rate limited")})
	var out types.RequestClassification
	err := a.GenerateJSON(context.Background(), "classify", nil, &out)
	assert.Error(t, err)
}

func TestGenerateJSONRejectsProseOnlyReply(t *testing.T) {
	a := New(&scriptedProvider{reply: "I cannot answer that."})
	var out types.RequestClassification
	err := a.GenerateJSON(context.Background(), "classify", nil, &out)
	assert.Error(t, err)
}
