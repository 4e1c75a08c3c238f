package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackClientUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubLLMClient{resp: LLMResponse{Text: "primary"}}
	fallback := &stubLLMClient{resp: LLMResponse{Text: "fallback"}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
}

func TestFallbackClientFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("quota exceeded")}
	fallback := &stubLLMClient{resp: LLMResponse{Text: "fallback"}}
	client := NewFallbackLLMClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
}

func TestFallbackClientNoFallbackConfigured(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	client := NewFallbackLLMClient(&stubLLMClient{err: wantErr}, nil, nil)

	_, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	assert.ErrorIs(t, err, wantErr)
}

func TestFallbackClientBothFail(t *testing.T) {
	fallbackErr := errors.New("bedrock throttled")
	client := NewFallbackLLMClient(
		&stubLLMClient{err: errors.New("gemini down")},
		&stubLLMClient{err: fallbackErr},
		nil,
	)

	_, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	assert.ErrorIs(t, err, fallbackErr)
}
