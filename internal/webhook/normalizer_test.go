package webhook

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("invalid test payload: %v", err)
	}
	return payload
}

var testNow = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func TestNormalizeCustomShape(t *testing.T) {
	payload := decode(t, `{
		"conversation_transcript": "Patient: hi.",
		"appointment_id": "A1",
		"patient_name": "Jane",
		"call_duration": "2m"
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyCustom {
		t.Fatalf("expected custom strategy, got %s", out.Strategy)
	}
	if out.Transcript != "Patient: hi." {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
	if len(out.Transcript) != 12 {
		t.Errorf("expected transcript length 12, got %d", len(out.Transcript))
	}
	if out.AppointmentID != "A1" || out.PatientName != "Jane" || out.CallDuration != "2m" {
		t.Errorf("unexpected metadata: %+v", out)
	}
}

func TestNormalizeCustomWinsOverStandard(t *testing.T) {
	payload := decode(t, `{
		"conversation_transcript": "from custom",
		"transcript": "from standard"
	}`)

	out := Normalize(payload, testNow)

	if out.Transcript != "from custom" {
		t.Fatalf("custom shape must win, got %q", out.Transcript)
	}
}

func TestNormalizeConsultationSummary(t *testing.T) {
	payload := decode(t, `{
		"consultation_summary": "summary text",
		"metadata": {"appointment_id": "A2", "duration": 95}
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategySummary {
		t.Fatalf("expected summary strategy, got %s", out.Strategy)
	}
	if out.Transcript != "summary text" {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
	if out.AppointmentID != "A2" {
		t.Errorf("expected appointment A2, got %q", out.AppointmentID)
	}
	if out.CallDuration != "95" {
		t.Errorf("expected numeric duration rendered as string, got %q", out.CallDuration)
	}
}

func TestNormalizeStandardShape(t *testing.T) {
	payload := decode(t, `{
		"transcript": "standard transcript",
		"duration": "3 minutes",
		"metadata": {"appointment_id": "A3", "patient_name": "Bob"}
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyStandard {
		t.Fatalf("expected standard strategy, got %s", out.Strategy)
	}
	if out.AppointmentID != "A3" || out.PatientName != "Bob" || out.CallDuration != "3 minutes" {
		t.Errorf("unexpected metadata: %+v", out)
	}
}

func TestNormalizeConversationObject(t *testing.T) {
	payload := decode(t, `{
		"conversation": {
			"messages": [
				{"role": "patient", "content": "hello"},
				{"role": "doctor", "content": "hi there"}
			],
			"metadata": {"appointment_id": "A4"},
			"duration": "4m"
		}
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyConversation {
		t.Fatalf("expected conversation strategy, got %s", out.Strategy)
	}
	if out.Transcript != "patient: hello\n\ndoctor: hi there" {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
	if out.AppointmentID != "A4" || out.CallDuration != "4m" {
		t.Errorf("unexpected metadata: %+v", out)
	}
}

func TestNormalizeConversationObjectPrefersTranscript(t *testing.T) {
	payload := decode(t, `{
		"conversation": {
			"transcript": "inline transcript",
			"messages": [{"role": "a", "content": "b"}]
		}
	}`)

	out := Normalize(payload, testNow)

	if out.Transcript != "inline transcript" {
		t.Fatalf("expected inline transcript, got %q", out.Transcript)
	}
}

func TestNormalizeMessagesArray(t *testing.T) {
	payload := decode(t, `{
		"messages": [
			{"role": "patient", "content": "hi"},
			{"role": "ai", "content": "hello"}
		]
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyMessages {
		t.Fatalf("expected messages strategy, got %s", out.Strategy)
	}
	if out.Transcript != "Patient: hi\n\nAi: hello" {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
}

func TestNormalizeMessagesAlternativeKeys(t *testing.T) {
	payload := decode(t, `{
		"messages": [
			{"speaker": "nurse", "text": "how are you"},
			{"message": "fine"}
		]
	}`)

	out := Normalize(payload, testNow)

	if out.Transcript != "Nurse: how are you\n\nUnknown: fine" {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
}

func TestNormalizeFallbackFields(t *testing.T) {
	payload := decode(t, `{
		"summary": "fallback text",
		"appointmentId": "A6",
		"context": {"patient_name": "Carol"},
		"length": "90s"
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyFallback {
		t.Fatalf("expected fallback strategy, got %s", out.Strategy)
	}
	if out.Transcript != "fallback text" {
		t.Errorf("unexpected transcript: %q", out.Transcript)
	}
	if out.AppointmentID != "A6" || out.PatientName != "Carol" || out.CallDuration != "90s" {
		t.Errorf("unexpected metadata: %+v", out)
	}
}

func TestNormalizeSentinelOnEmptyPayload(t *testing.T) {
	out := Normalize(map[string]any{}, testNow)

	if out.Strategy != StrategySentinel {
		t.Fatalf("expected sentinel strategy, got %s", out.Strategy)
	}
	if !strings.HasPrefix(out.Transcript, SentinelPrefix) {
		t.Errorf("sentinel transcript missing prefix: %q", out.Transcript)
	}
	if !strings.Contains(out.Transcript, "2025-06-01T12:30:00.000Z") {
		t.Errorf("sentinel transcript missing timestamp: %q", out.Transcript)
	}
	if !strings.Contains(out.Transcript, "Webhook Data:") {
		t.Errorf("sentinel transcript missing payload dump: %q", out.Transcript)
	}
}

func TestNormalizeSentinelOnNilPayload(t *testing.T) {
	out := Normalize(nil, testNow)

	if out.Strategy != StrategySentinel {
		t.Fatalf("expected sentinel strategy, got %s", out.Strategy)
	}
	if out.Transcript == "" {
		t.Fatal("sentinel transcript must never be empty")
	}
}

func TestNormalizeSentinelOnUnusableShapes(t *testing.T) {
	// Fields exist but carry no usable text: dispatch must fall through all
	// strategies rather than stopping at the first matching field name.
	payload := decode(t, `{
		"conversation_transcript": "",
		"conversation": {"messages": []},
		"messages": [{"role": "a"}],
		"text": 42
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategySentinel {
		t.Fatalf("expected sentinel strategy, got %s", out.Strategy)
	}
}

func TestNormalizeEmptyStringsFallThrough(t *testing.T) {
	payload := decode(t, `{
		"conversation_transcript": "",
		"transcript": "real text",
		"appointment_id": "A7"
	}`)

	out := Normalize(payload, testNow)

	if out.Strategy != StrategyStandard {
		t.Fatalf("expected standard strategy after empty custom field, got %s", out.Strategy)
	}
	if out.Transcript != "real text" || out.AppointmentID != "A7" {
		t.Errorf("unexpected extraction: %+v", out)
	}
}
