package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderFor(t *testing.T) {
	cases := map[string]string{
		"gpt-4o-2024-08-06":        ProviderOpenAI,
		"o1-preview":               ProviderOpenAI,
		"claude-3-opus-20240229":   ProviderAnthropic,
		"claude-3-5-sonnet-latest": ProviderAnthropic,
	}
	for model, want := range cases {
		got, err := ProviderFor(model)
		require.NoError(t, err, model)
		assert.Equal(t, want, got, model)
	}

	_, err := ProviderFor("llama-3")
	require.Error(t, err)
}

func TestNewClientRequiresKeys(t *testing.T) {
	_, err := NewClient("gpt-4o", FactoryConfig{})
	require.Error(t, err)
	_, err = NewClient("claude-3-opus", FactoryConfig{})
	require.Error(t, err)

	client, err := NewClient("claude-3-opus", FactoryConfig{Anthropic: Config{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus", client.Model())
	_, wrapped := client.(*retryClient)
	assert.True(t, wrapped)

	raw, err := NewClient("gpt-4o", FactoryConfig{OpenAI: Config{APIKey: "k"}, DisableRetry: true})
	require.NoError(t, err)
	_, isOpenAI := raw.(*openaiClient)
	assert.True(t, isOpenAI)
}

func TestScriptedClientReplaysInOrder(t *testing.T) {
	mock := NewScriptedClient("first", "second")
	ctx := context.Background()
	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}, StopSequences: []string{"<END_INPUT>"}}

	resp, err := mock.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text())

	req.Prefix = "P:"
	resp, err = mock.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "P:second", resp.Text())

	_, err = mock.Complete(ctx, req)
	require.Error(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"<END_INPUT>"}, reqs[0].StopSequences)
}
