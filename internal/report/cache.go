package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const cacheTTL = 24 * time.Hour

// CachedReport is the cached projection of a completed report lookup.
// Completed is a terminal state, so cached entries never go stale.
type CachedReport struct {
	ConversationID string    `json:"conversationId"`
	AppointmentID  string    `json:"appointmentId"`
	PatientName    string    `json:"patientName"`
	CallDuration   string    `json:"callDuration"`
	Transcript     string    `json:"transcript"`
	Report         string    `json:"report"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Cache stores completed reports in Redis so repeat lookups skip both
// the database and the LLM.
type Cache struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewCache(client *redis.Client, tracer trace.Tracer) *Cache {
	if client == nil {
		panic("report: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("voicereports.internal.report.cache")
	}
	return &Cache{redis: client, tracer: tracer}
}

func (c *Cache) Save(ctx context.Context, cached CachedReport) error {
	ctx, span := c.tracer.Start(ctx, "report.cache_save")
	defer span.End()

	data, err := json.Marshal(cached)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("report: failed to marshal cached report: %w", err)
	}
	if err := c.redis.Set(ctx, reportKey(cached.AppointmentID), data, cacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("report: failed to persist cached report: %w", err)
	}
	return nil
}

// Load returns the cached report for an appointment, or nil on a miss.
func (c *Cache) Load(ctx context.Context, appointmentID string) (*CachedReport, error) {
	ctx, span := c.tracer.Start(ctx, "report.cache_load")
	defer span.End()

	data, err := c.redis.Get(ctx, reportKey(appointmentID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("report: failed to load cached report: %w", err)
	}

	var cached CachedReport
	if err := json.Unmarshal(data, &cached); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("report: failed to decode cached report: %w", err)
	}
	return &cached, nil
}

// Invalidate drops the cached report for an appointment. Called on ingest:
// a new conversation for the same appointment makes the cached record no
// longer the most recent one, so lookups must go back to the database.
func (c *Cache) Invalidate(ctx context.Context, appointmentID string) error {
	ctx, span := c.tracer.Start(ctx, "report.cache_invalidate")
	defer span.End()

	if err := c.redis.Del(ctx, reportKey(appointmentID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("report: failed to invalidate cached report: %w", err)
	}
	return nil
}

func reportKey(appointmentID string) string {
	return fmt.Sprintf("report:%s", appointmentID)
}
