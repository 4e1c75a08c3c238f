package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	// ErrConversationExists is returned when an insert collides with an
	// existing conversation id.
	ErrConversationExists = errors.New("conversation: id already exists")
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("conversation: not found")
	// ErrStateConflict is returned when a report state transition's
	// precondition does not hold.
	ErrStateConflict = errors.New("conversation: report state conflict")
)

const pgUniqueViolation = "23505"

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversation records in Postgres. State transitions are
// single compare-and-set UPDATE statements, so the database serializes
// concurrent report generation without in-process locks.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &Store{pool: pool}
}

const recordColumns = `conversation_id, appointment_id, transcript, patient_name, call_duration,
	       webhook_data, report_status, generated_report, report_generated_at,
	       created_at, updated_at`

// Insert persists a new record with report_status=pending.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("conversation: record cannot be nil")
	}
	now := time.Now().UTC()
	rec.ReportStatus = StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (
			conversation_id, appointment_id, transcript, patient_name,
			call_duration, webhook_data, report_status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ConversationID, rec.AppointmentID, rec.Transcript, rec.PatientName,
		rec.CallDuration, []byte(rec.WebhookData), string(rec.ReportStatus), now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConversationExists
		}
		return fmt.Errorf("conversation: failed to insert record: %w", err)
	}
	return nil
}

// FindByAppointment returns the most recently created record for the
// appointment, or ErrNotFound.
func (s *Store) FindByAppointment(ctx context.Context, appointmentID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE appointment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID)
	return scanRecord(row)
}

// MostRecent returns the newest record overall. Debug convenience for the
// lookup fallback; never used to satisfy production lookups silently.
func (s *Store) MostRecent(ctx context.Context) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT ` + recordColumns + `
		FROM conversations
		ORDER BY created_at DESC
		LIMIT 1
	`)
	return scanRecord(row)
}

// RecentAppointmentIDs lists the appointment ids of the newest records, for
// the not-found diagnostic envelope.
func (s *Store) RecentAppointmentIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT appointment_id
		FROM conversations
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to list appointments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan appointment id: %w", err)
		}
		out = append(out, id)
	}
	if out == nil {
		out = []string{}
	}
	return out, rows.Err()
}

// MarkGenerating transitions pending|failed -> generating. At most one
// concurrent caller wins; the rest get ErrStateConflict.
func (s *Store) MarkGenerating(ctx context.Context, conversationID string) error {
	return s.transition(ctx, `
		UPDATE conversations
		SET report_status = $2, updated_at = now()
		WHERE conversation_id = $1 AND report_status IN ($3, $4)
	`, conversationID, string(StatusGenerating), string(StatusPending), string(StatusFailed))
}

// CompleteReport transitions generating -> completed and stores the report.
func (s *Store) CompleteReport(ctx context.Context, conversationID, report string, generatedAt time.Time) error {
	return s.transition(ctx, `
		UPDATE conversations
		SET report_status = $2,
		    generated_report = $3,
		    report_generated_at = $4,
		    updated_at = now()
		WHERE conversation_id = $1 AND report_status = $5
	`, conversationID, string(StatusCompleted), report, generatedAt.UTC(), string(StatusGenerating))
}

// FailReport transitions generating -> failed, leaving the record retriable.
func (s *Store) FailReport(ctx context.Context, conversationID string) error {
	return s.transition(ctx, `
		UPDATE conversations
		SET report_status = $2,
		    generated_report = NULL,
		    report_generated_at = NULL,
		    updated_at = now()
		WHERE conversation_id = $1 AND report_status = $3
	`, conversationID, string(StatusFailed), string(StatusGenerating))
}

func (s *Store) transition(ctx context.Context, sql string, args ...any) error {
	result, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("conversation: failed to update report status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		webhookData []byte
		status      string
		report      pgtype.Text
		generatedAt pgtype.Timestamptz
	)
	err := row.Scan(&rec.ConversationID, &rec.AppointmentID, &rec.Transcript,
		&rec.PatientName, &rec.CallDuration, &webhookData, &status,
		&report, &generatedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: failed to fetch record: %w", err)
	}
	rec.WebhookData = webhookData
	rec.ReportStatus = ReportStatus(status)
	if report.Valid {
		rec.GeneratedReport = &report.String
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		rec.ReportGeneratedAt = &t
	}
	return &rec, nil
}
