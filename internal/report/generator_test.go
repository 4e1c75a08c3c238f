package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLMClient struct {
	resp    LLMResponse
	err     error
	lastReq LLMRequest
}

func (s *stubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.lastReq = req
	return s.resp, s.err
}

func TestGeneratorReturnsReportText(t *testing.T) {
	stub := &stubLLMClient{resp: LLMResponse{
		Text:  "Chief Complaint: headache\n\nRecommended Follow-up: in-person visit",
		Usage: TokenUsage{InputTokens: 120, OutputTokens: 40, TotalTokens: 160},
	}}
	gen := NewGenerator(GeneratorConfig{LLM: stub, Model: "gemini-2.5-flash"})

	text, err := gen.Generate(context.Background(), "Patient: I have a headache", CallContext{
		PatientName:   "Jane Doe",
		AppointmentID: "apt-100",
		CallDuration:  "300",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Chief Complaint")
}

func TestGeneratorPromptIncludesTranscriptAndMetadata(t *testing.T) {
	stub := &stubLLMClient{resp: LLMResponse{Text: "report"}}
	gen := NewGenerator(GeneratorConfig{LLM: stub})

	_, err := gen.Generate(context.Background(), "Patient: my knee hurts", CallContext{
		PatientName:   "Bob",
		AppointmentID: "apt-55",
		CallDuration:  "180",
	})
	require.NoError(t, err)

	require.Len(t, stub.lastReq.Messages, 1)
	prompt := stub.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "Patient: my knee hurts")
	assert.Contains(t, prompt, "Bob")
	assert.Contains(t, prompt, "apt-55")
	assert.Contains(t, prompt, "180")
	require.Len(t, stub.lastReq.System, 1)
	assert.Contains(t, stub.lastReq.System[0], "medical scribe")
}

func TestGeneratorBlankMetadataRenderedAsUnknown(t *testing.T) {
	stub := &stubLLMClient{resp: LLMResponse{Text: "report"}}
	gen := NewGenerator(GeneratorConfig{LLM: stub})

	_, err := gen.Generate(context.Background(), "hello", CallContext{})
	require.NoError(t, err)
	assert.Contains(t, stub.lastReq.Messages[0].Content, "Patient name: Unknown")
}

func TestGeneratorEmptyTranscript(t *testing.T) {
	gen := NewGenerator(GeneratorConfig{LLM: &stubLLMClient{}})

	_, err := gen.Generate(context.Background(), "   \n", CallContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcript is empty")
}

func TestGeneratorWhitespaceOnlyOutputIsError(t *testing.T) {
	stub := &stubLLMClient{resp: LLMResponse{Text: "  \n\t "}}
	gen := NewGenerator(GeneratorConfig{LLM: stub})

	_, err := gen.Generate(context.Background(), "transcript", CallContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty report")
}

func TestGeneratorPropagatesClientError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	gen := NewGenerator(GeneratorConfig{LLM: &stubLLMClient{err: wantErr}})

	_, err := gen.Generate(context.Background(), "transcript", CallContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestGeneratorTrimsOutput(t *testing.T) {
	stub := &stubLLMClient{resp: LLMResponse{Text: "\n  the report body  \n"}}
	gen := NewGenerator(GeneratorConfig{LLM: stub, Timeout: 5 * time.Second})

	text, err := gen.Generate(context.Background(), "transcript", CallContext{})
	require.NoError(t, err)
	assert.Equal(t, "the report body", text)
	assert.False(t, strings.HasPrefix(text, " "))
}
