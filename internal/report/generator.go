package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cliqpat/voicereports/pkg/logging"
)

// CallContext carries the conversation metadata forwarded to the LLM
// alongside the transcript.
type CallContext struct {
	PatientName   string
	AppointmentID string
	CallDuration  string
}

// Generator produces a structured consultation report from a call
// transcript by invoking the configured LLM client. From the caller's
// perspective it is a pure function of its inputs.
type Generator struct {
	llm       LLMClient
	model     string
	maxTokens int32
	timeout   time.Duration
	logger    *logging.Logger
}

type GeneratorConfig struct {
	LLM       LLMClient
	Model     string
	MaxTokens int32
	Timeout   time.Duration
	Logger    *logging.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.LLM == nil {
		panic("report: llm client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Generator{
		llm:       cfg.LLM,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

const systemPrompt = `You are a medical scribe assisting a clinician. You turn a patient
phone-consultation transcript into a concise written report with these
sections: Chief Complaint, History of Present Illness, Symptoms,
Medications Mentioned, Allergies Mentioned, and Recommended Follow-up.
State only what the transcript supports; write "Not discussed" for
sections the conversation did not cover. Do not invent clinical
findings and do not give a diagnosis.`

// Generate invokes the LLM and returns the report text. The call is
// bounded by the configured timeout so a hung provider cannot pin a
// record in the generating state forever.
func (g *Generator) Generate(ctx context.Context, transcript string, call CallContext) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("report: transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.llm.Complete(ctx, LLMRequest{
		Model:       g.model,
		System:      []string{systemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: buildPrompt(transcript, call)}},
		MaxTokens:   g.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		g.logger.Error("report generation failed",
			"error", err,
			"appointment_id", call.AppointmentID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("report: generation failed: %w", err)
	}

	// Coerce to a plain string before storage so structured provider
	// payloads never leak into the generated_report column.
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("report: llm returned empty report")
	}

	g.logger.Info("report generated",
		"appointment_id", call.AppointmentID,
		"report_chars", len(text),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func buildPrompt(transcript string, call CallContext) string {
	var sb strings.Builder
	sb.WriteString("Patient name: ")
	sb.WriteString(orUnknown(call.PatientName))
	sb.WriteString("\nAppointment ID: ")
	sb.WriteString(orUnknown(call.AppointmentID))
	sb.WriteString("\nCall duration: ")
	sb.WriteString(orUnknown(call.CallDuration))
	sb.WriteString("\n\nTranscript:\n")
	sb.WriteString(transcript)
	return sb.String()
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "Unknown"
	}
	return v
}
