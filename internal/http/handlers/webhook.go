package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cliqpat/voicereports/internal/conversation"
	observemetrics "github.com/cliqpat/voicereports/internal/observability/metrics"
	"github.com/cliqpat/voicereports/internal/report"
	"github.com/cliqpat/voicereports/internal/webhook"
	"github.com/cliqpat/voicereports/pkg/logging"
	"github.com/go-chi/chi/v5"
)

const recentAppointmentsLimit = 5

type conversationStore interface {
	Insert(ctx context.Context, rec *conversation.Record) error
	FindByAppointment(ctx context.Context, appointmentID string) (*conversation.Record, error)
	MostRecent(ctx context.Context) (*conversation.Record, error)
	RecentAppointmentIDs(ctx context.Context, limit int) ([]string, error)
	MarkGenerating(ctx context.Context, conversationID string) error
	CompleteReport(ctx context.Context, conversationID, generatedReport string, generatedAt time.Time) error
	FailReport(ctx context.Context, conversationID string) error
}

type reportGenerator interface {
	Generate(ctx context.Context, transcript string, call report.CallContext) (string, error)
}

type reportCache interface {
	Load(ctx context.Context, appointmentID string) (*report.CachedReport, error)
	Save(ctx context.Context, cached report.CachedReport) error
	Invalidate(ctx context.Context, appointmentID string) error
}

// ConversationWebhookHandler ingests call-completion webhooks and serves
// on-demand report materialization.
type ConversationWebhookHandler struct {
	store          conversationStore
	generator      reportGenerator
	cache          reportCache
	logger         *logging.Logger
	metrics        *observemetrics.WebhookMetrics
	lookupFallback bool
	newID          func() string
	now            func() time.Time
}

type ConversationWebhookConfig struct {
	Store     conversationStore
	Generator reportGenerator
	// Cache is optional; when nil, every report lookup goes to Postgres.
	Cache   reportCache
	Logger  *logging.Logger
	Metrics *observemetrics.WebhookMetrics
	// LookupFallback enables the debug behavior of answering an unknown
	// appointment id with the most recent record overall. Responses served
	// this way carry lookupFallback=true.
	LookupFallback bool
}

func NewConversationWebhookHandler(cfg ConversationWebhookConfig) *ConversationWebhookHandler {
	if cfg.Store == nil {
		panic("handlers: conversation store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ConversationWebhookHandler{
		store:          cfg.Store,
		generator:      cfg.Generator,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		lookupFallback: cfg.LookupFallback,
		newID:          conversation.NewConversationID,
		now:            time.Now,
	}
}

// HandleConversation processes POST /webhook/conversation. The upstream
// provider retries on non-2xx, so everything recoverable answers 200.
func (h *ConversationWebhookHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	start := h.now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to read request body",
		})
		return
	}

	var payload map[string]any
	raw := body
	if err := json.Unmarshal(body, &payload); err != nil {
		// Non-JSON and empty bodies still get a record; the sentinel
		// transcript covers them and webhook_data stays valid jsonb.
		payload = nil
		raw = []byte("{}")
	}

	ext := webhook.Normalize(payload, h.now().UTC())

	rec := &conversation.Record{
		ConversationID: h.newID(),
		AppointmentID:  orDefault(ext.AppointmentID, conversation.UnknownAppointment),
		Transcript:     ext.Transcript,
		PatientName:    orDefault(ext.PatientName, conversation.UnknownPatientName),
		CallDuration:   orDefault(ext.CallDuration, conversation.UnknownCallDuration),
		WebhookData:    raw,
	}

	err = h.store.Insert(r.Context(), rec)
	if errors.Is(err, conversation.ErrConversationExists) {
		// Id collision is vanishingly rare; one fresh id is enough.
		rec.ConversationID = h.newID()
		err = h.store.Insert(r.Context(), rec)
	}
	if err != nil {
		h.logger.Error("failed to store conversation",
			"error", err,
			"appointment_id", rec.AppointmentID,
			"strategy", ext.Strategy,
		)
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to store conversation",
		})
		return
	}

	if h.cache != nil {
		// The cached report for this appointment, if any, no longer
		// belongs to the most recent conversation.
		if err := h.cache.Invalidate(context.WithoutCancel(r.Context()), rec.AppointmentID); err != nil {
			h.logger.Warn("failed to invalidate cached report", "error", err, "appointment_id", rec.AppointmentID)
		}
	}

	h.metrics.ObserveIngest(ext.Strategy, time.Since(start).Seconds())
	h.logger.Info("conversation stored",
		"conversation_id", rec.ConversationID,
		"appointment_id", rec.AppointmentID,
		"strategy", ext.Strategy,
		"transcript_chars", len(rec.Transcript),
	)

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Conversation stored successfully",
		"data": map[string]any{
			"conversationId":   rec.ConversationID,
			"appointmentId":    rec.AppointmentID,
			"patientName":      rec.PatientName,
			"transcriptLength": utf8.RuneCountInString(rec.Transcript),
			"status":           "stored",
		},
	})
}

// HandleReport processes GET /webhook/report/{appointmentID}. Completed
// reports are served from cache or storage; otherwise generation runs
// inline, guarded by the store's compare-and-set transition so at most one
// caller generates per record.
func (h *ConversationWebhookHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	appointmentID := chi.URLParam(r, "appointmentID")
	ctx := r.Context()

	if h.cache != nil {
		cached, err := h.cache.Load(ctx, appointmentID)
		if err != nil {
			h.logger.Warn("report cache lookup failed", "error", err, "appointment_id", appointmentID)
		} else if cached != nil {
			h.metrics.ObserveReport("cache_hit")
			respondJSON(w, http.StatusOK, reportEnvelope(&conversation.Record{
				ConversationID:    cached.ConversationID,
				AppointmentID:     cached.AppointmentID,
				PatientName:       cached.PatientName,
				CallDuration:      cached.CallDuration,
				Transcript:        cached.Transcript,
				GeneratedReport:   &cached.Report,
				ReportGeneratedAt: &cached.GeneratedAt,
			}, false))
			return
		}
	}

	rec, err := h.store.FindByAppointment(ctx, appointmentID)
	usedFallback := false
	if errors.Is(err, conversation.ErrNotFound) && h.lookupFallback {
		rec, err = h.store.MostRecent(ctx)
		usedFallback = err == nil
	}
	if errors.Is(err, conversation.ErrNotFound) {
		h.respondNotFound(w, r, appointmentID)
		return
	}
	if err != nil {
		h.logger.Error("report lookup failed", "error", err, "appointment_id", appointmentID)
		h.metrics.ObserveReport("storage_error")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to look up conversation",
		})
		return
	}

	if rec.ReportStatus == conversation.StatusCompleted && rec.HasReport() {
		h.metrics.ObserveReport("completed")
		h.saveToCache(ctx, rec)
		respondJSON(w, http.StatusOK, reportEnvelope(rec, usedFallback))
		return
	}

	if err := h.store.MarkGenerating(ctx, rec.ConversationID); err != nil {
		if errors.Is(err, conversation.ErrStateConflict) {
			h.metrics.ObserveReport("conflict")
			respondJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"status":  "generating",
				"message": "Report generation already in progress",
			})
			return
		}
		h.logger.Error("failed to claim report generation", "error", err, "conversation_id", rec.ConversationID)
		h.metrics.ObserveReport("storage_error")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to start report generation",
		})
		return
	}

	// Once the record is claimed, the follow-up transition must land even if
	// the client goes away. A canceled request context would strand the
	// record in generating, where no later caller can reclaim it.
	persistCtx := context.WithoutCancel(ctx)

	genStart := h.now()
	text, err := h.generator.Generate(ctx, rec.Transcript, report.CallContext{
		PatientName:   rec.PatientName,
		AppointmentID: rec.AppointmentID,
		CallDuration:  rec.CallDuration,
	})
	h.metrics.ObserveGeneration(time.Since(genStart).Seconds())
	if err != nil {
		if failErr := h.store.FailReport(persistCtx, rec.ConversationID); failErr != nil {
			h.logger.Error("failed to mark report failed", "error", failErr, "conversation_id", rec.ConversationID)
		}
		h.metrics.ObserveReport("generation_failed")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	generatedAt := h.now().UTC()
	if err := h.store.CompleteReport(persistCtx, rec.ConversationID, text, generatedAt); err != nil {
		h.logger.Error("failed to store generated report", "error", err, "conversation_id", rec.ConversationID)
		h.metrics.ObserveReport("storage_error")
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "failed to store generated report",
		})
		return
	}

	rec.ReportStatus = conversation.StatusCompleted
	rec.GeneratedReport = &text
	rec.ReportGeneratedAt = &generatedAt
	h.metrics.ObserveReport("generated")
	h.saveToCache(persistCtx, rec)

	respondJSON(w, http.StatusOK, reportEnvelope(rec, usedFallback))
}

// HandleTest answers GET and POST /webhook/test so provider configuration
// can be verified without touching storage.
func (h *ConversationWebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"success":    true,
		"message":    "Webhook endpoint is reachable",
		"method":     r.Method,
		"receivedAt": h.now().UTC().Format(time.RFC3339),
	}
	if r.Method == http.MethodPost {
		var echo any
		if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
			if json.Unmarshal(body, &echo) == nil {
				resp["echo"] = echo
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// HealthCheck answers liveness probes.
func (h *ConversationWebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConversationWebhookHandler) respondNotFound(w http.ResponseWriter, r *http.Request, appointmentID string) {
	recent, err := h.store.RecentAppointmentIDs(r.Context(), recentAppointmentsLimit)
	if err != nil {
		h.logger.Warn("failed to list recent appointments", "error", err)
		recent = []string{}
	}
	h.metrics.ObserveReport("not_found")
	respondJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"message": "No conversation found for this appointment",
		"debug": map[string]any{
			"searchedAppointmentId":  appointmentID,
			"availableConversations": recent,
		},
	})
}

func (h *ConversationWebhookHandler) saveToCache(ctx context.Context, rec *conversation.Record) {
	if h.cache == nil || !rec.HasReport() {
		return
	}
	err := h.cache.Save(ctx, report.CachedReport{
		ConversationID: rec.ConversationID,
		AppointmentID:  rec.AppointmentID,
		PatientName:    rec.PatientName,
		CallDuration:   rec.CallDuration,
		Transcript:     rec.Transcript,
		Report:         *rec.GeneratedReport,
		GeneratedAt:    *rec.ReportGeneratedAt,
	})
	if err != nil {
		h.logger.Warn("failed to cache report", "error", err, "appointment_id", rec.AppointmentID)
	}
}

func reportEnvelope(rec *conversation.Record, usedFallback bool) map[string]any {
	var generatedReport any
	if rec.GeneratedReport != nil {
		generatedReport = *rec.GeneratedReport
	}
	var generatedAt any
	if rec.ReportGeneratedAt != nil {
		generatedAt = rec.ReportGeneratedAt.UTC().Format(time.RFC3339)
	}
	env := map[string]any{
		"success": true,
		"message": "Report retrieved successfully",
		"data": map[string]any{
			"conversationId":    rec.ConversationID,
			"appointmentId":     rec.AppointmentID,
			"patientName":       rec.PatientName,
			"callDuration":      rec.CallDuration,
			"generatedReport":   generatedReport,
			"reportGeneratedAt": generatedAt,
			"transcript":        rec.Transcript,
		},
	}
	if usedFallback {
		env["lookupFallback"] = true
	}
	return env
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
