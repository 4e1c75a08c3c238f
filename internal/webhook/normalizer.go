package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Extraction strategy names, in dispatch priority order. The voice provider
// has shipped several webhook shapes over time; the normalizer accepts the
// first strategy that yields a non-empty transcript.
const (
	StrategyCustom       = "custom"
	StrategySummary      = "consultation_summary"
	StrategyStandard     = "standard"
	StrategyConversation = "conversation"
	StrategyMessages     = "messages"
	StrategyFallback     = "fallback"
	StrategySentinel     = "sentinel"
)

// Extraction is the canonical result of normalizing an inbound webhook
// payload. Transcript is always non-empty; the remaining fields are empty
// when the payload carried no usable value and are defaulted by the caller.
type Extraction struct {
	Transcript    string
	AppointmentID string
	PatientName   string
	CallDuration  string
	Strategy      string
}

// Normalize maps any accepted webhook payload shape onto an Extraction.
// It never fails: when no transcript text can be found, a sentinel
// transcript is synthesized from the payload and the supplied timestamp.
func Normalize(payload map[string]any, now time.Time) Extraction {
	strategies := []func(map[string]any) (Extraction, bool){
		extractCustom,
		extractSummary,
		extractStandard,
		extractConversation,
		extractMessages,
		extractFallback,
	}
	for _, extract := range strategies {
		if out, ok := extract(payload); ok {
			return out
		}
	}
	return sentinel(payload, now)
}

// Strategy 1: our custom format with a top-level conversation_transcript.
func extractCustom(payload map[string]any) (Extraction, bool) {
	transcript := stringField(payload, "conversation_transcript")
	if transcript == "" {
		return Extraction{}, false
	}
	return Extraction{
		Transcript:    transcript,
		AppointmentID: stringField(payload, "appointment_id"),
		PatientName:   stringField(payload, "patient_name"),
		CallDuration:  stringField(payload, "call_duration"),
		Strategy:      StrategyCustom,
	}, true
}

// Strategy 2: consultation_summary with metadata either inline or nested.
func extractSummary(payload map[string]any) (Extraction, bool) {
	transcript := stringField(payload, "consultation_summary")
	if transcript == "" {
		return Extraction{}, false
	}
	meta := subObject(payload, "metadata")
	return Extraction{
		Transcript:    transcript,
		AppointmentID: firstOf(stringField(payload, "appointment_id"), stringField(meta, "appointment_id")),
		PatientName:   firstOf(stringField(payload, "patient_name"), stringField(meta, "patient_name")),
		CallDuration:  firstOf(stringField(payload, "call_duration"), stringField(payload, "duration"), stringField(meta, "duration")),
		Strategy:      StrategySummary,
	}, true
}

// Strategy 3: the provider's standard webhook format with a top-level
// transcript field. Metadata preferentially comes from the nested object.
func extractStandard(payload map[string]any) (Extraction, bool) {
	transcript := stringField(payload, "transcript")
	if transcript == "" {
		return Extraction{}, false
	}
	meta := subObject(payload, "metadata")
	return Extraction{
		Transcript:    transcript,
		AppointmentID: firstOf(stringField(meta, "appointment_id"), stringField(payload, "appointment_id")),
		PatientName:   firstOf(stringField(meta, "patient_name"), stringField(payload, "patient_name")),
		CallDuration:  firstOf(stringField(payload, "duration"), stringField(payload, "call_duration")),
		Strategy:      StrategyStandard,
	}, true
}

// Strategy 4: a nested conversation object carrying either a transcript or
// a messages array.
func extractConversation(payload map[string]any) (Extraction, bool) {
	conv := subObject(payload, "conversation")
	if conv == nil {
		return Extraction{}, false
	}
	transcript := stringField(conv, "transcript")
	if transcript == "" {
		transcript = joinMessages(listField(conv, "messages"), false)
	}
	if transcript == "" {
		return Extraction{}, false
	}
	meta := subObject(conv, "metadata")
	return Extraction{
		Transcript:    transcript,
		AppointmentID: firstOf(stringField(meta, "appointment_id"), stringField(payload, "appointment_id")),
		PatientName:   firstOf(stringField(meta, "patient_name"), stringField(payload, "patient_name")),
		CallDuration:  firstOf(stringField(conv, "duration"), stringField(payload, "duration")),
		Strategy:      StrategyConversation,
	}, true
}

// Strategy 5: a top-level messages array. Role names are capitalized in the
// synthesized transcript.
func extractMessages(payload map[string]any) (Extraction, bool) {
	transcript := joinMessages(listField(payload, "messages"), true)
	if transcript == "" {
		return Extraction{}, false
	}
	meta := subObject(payload, "metadata")
	return Extraction{
		Transcript:    transcript,
		AppointmentID: firstOf(stringField(meta, "appointment_id"), stringField(payload, "appointment_id")),
		PatientName:   firstOf(stringField(meta, "patient_name"), stringField(payload, "patient_name")),
		CallDuration:  firstOf(stringField(payload, "duration"), stringField(payload, "call_duration")),
		Strategy:      StrategyMessages,
	}, true
}

// transcriptFallbackFields are probed in order by the generic strategy.
var transcriptFallbackFields = []string{
	"text", "content", "summary", "consultation_summary",
	"dialog", "chat", "conversation_text",
}

// Strategy 6: generic fallback over a fixed set of alternative keys.
func extractFallback(payload map[string]any) (Extraction, bool) {
	var transcript string
	for _, field := range transcriptFallbackFields {
		if v, ok := payload[field].(string); ok && v != "" {
			transcript = v
			break
		}
	}
	if transcript == "" {
		return Extraction{}, false
	}
	meta := subObject(payload, "metadata")
	ctx := subObject(payload, "context")
	return Extraction{
		Transcript: transcript,
		AppointmentID: firstOf(
			stringField(payload, "appointment_id"),
			stringField(payload, "appointmentId"),
			stringField(meta, "appointment_id"),
			stringField(ctx, "appointment_id"),
		),
		PatientName: firstOf(
			stringField(payload, "patient_name"),
			stringField(payload, "patientName"),
			stringField(meta, "patient_name"),
			stringField(ctx, "patient_name"),
		),
		CallDuration: firstOf(
			stringField(payload, "call_duration"),
			stringField(payload, "duration"),
			stringField(payload, "length"),
			stringField(meta, "duration"),
		),
		Strategy: StrategyFallback,
	}, true
}

// SentinelPrefix is the stable prefix of synthesized transcripts. Downstream
// readers rely on it, so treat it as part of the wire contract.
const SentinelPrefix = "Conversation received via webhook at "

func sentinel(payload map[string]any, now time.Time) Extraction {
	serialized, err := json.MarshalIndent(payload, "", "  ")
	if err != nil || payload == nil {
		serialized = []byte("{}")
	}
	transcript := SentinelPrefix + now.UTC().Format("2006-01-02T15:04:05.000Z") +
		"\n\nWebhook Data: " + string(serialized)
	return Extraction{
		Transcript: transcript,
		Strategy:   StrategySentinel,
	}
}

// joinMessages renders a messages array as "Role: content" lines separated
// by blank lines. Role may appear as "role" or "speaker"; content as
// "content", "text", or "message". Entries without content are skipped.
func joinMessages(messages []any, capitalize bool) string {
	var lines []string
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content := firstOf(
			stringField(msg, "content"),
			stringField(msg, "text"),
			stringField(msg, "message"),
		)
		if content == "" {
			continue
		}
		role := firstOf(stringField(msg, "role"), stringField(msg, "speaker"))
		if role == "" {
			role = "unknown"
		}
		if capitalize {
			role = capitalizeFirst(role)
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n\n")
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stringField reads a field as free-form text. Numeric values are rendered
// as strings because the provider sends durations both ways.
func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func subObject(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	if v, ok := obj[key].(map[string]any); ok {
		return v
	}
	return nil
}

func listField(obj map[string]any, key string) []any {
	if obj == nil {
		return nil
	}
	if v, ok := obj[key].([]any); ok {
		return v
	}
	return nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
