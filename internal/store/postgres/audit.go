// Package postgres persists the audit trail in PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/drblury/activityflow/internal/store"
)

const auditTableName = "activity_audit_log"

const createAuditTable = `
CREATE TABLE IF NOT EXISTS ` + auditTableName + ` (
	event_id          TEXT PRIMARY KEY,
	correlation_id    TEXT NOT NULL,
	request_id        TEXT,
	user_id           BIGINT NOT NULL,
	actor_user_id     BIGINT,
	actor_user_name   TEXT,
	actor_role        TEXT,
	entity_type       TEXT NOT NULL,
	entity_id         BIGINT,
	entity_name       TEXT,
	action            TEXT NOT NULL,
	description       TEXT,
	old_values        JSONB,
	new_values        JSONB,
	ip_address        TEXT,
	user_agent        TEXT,
	session_id        TEXT,
	http_method       TEXT,
	endpoint          TEXT,
	execution_time_ms BIGINT,
	status            TEXT,
	error_message     TEXT,
	response_code     INTEGER,
	source_service    TEXT,
	service_version   TEXT,
	environment       TEXT,
	occurred_at       TIMESTAMPTZ NOT NULL,
	recorded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ` + auditTableName + `_user_idx ON ` + auditTableName + ` (user_id, occurred_at DESC);
`

// The first write wins; a redelivered event is a no-op.
const insertAudit = `
INSERT INTO ` + auditTableName + ` (
	event_id, correlation_id, request_id, user_id, actor_user_id, actor_user_name, actor_role,
	entity_type, entity_id, entity_name, action, description, old_values, new_values,
	ip_address, user_agent, session_id, http_method, endpoint, execution_time_ms,
	status, error_message, response_code, source_service, service_version, environment, occurred_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
)
ON CONFLICT (event_id) DO NOTHING;
`

// AuditStore implements store.AuditStore on a PostgreSQL table keyed by
// event_id.
type AuditStore struct {
	db *sql.DB
}

// Open connects lazily; the first query establishes the connection.
func Open(dsn string) (*AuditStore, error) {
	if _, err := pq.ParseURL(dsn); err != nil {
		return nil, fmt.Errorf("postgres: invalid audit database URL: %w", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return NewAuditStore(db), nil
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Migrate creates the audit table when it does not exist.
func (s *AuditStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAuditTable); err != nil {
		return fmt.Errorf("postgres: migrate audit table: %w", err)
	}
	return nil
}

func (s *AuditStore) Persist(ctx context.Context, rec store.AuditRecord) error {
	if rec.EventID == "" {
		return errors.New("postgres: audit record without event id")
	}
	if _, err := s.db.ExecContext(ctx, insertAudit, auditArgs(rec)...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}

func auditArgs(rec store.AuditRecord) []any {
	return []any{
		rec.EventID,
		rec.CorrelationID,
		nullString(rec.RequestID),
		rec.UserID,
		nullInt64(rec.ActorUserID),
		nullString(rec.ActorUserName),
		nullString(rec.ActorRole),
		rec.EntityType,
		nullInt64(rec.EntityID),
		nullString(rec.EntityName),
		rec.Action,
		nullString(rec.Description),
		nullJSON(rec.OldValues),
		nullJSON(rec.NewValues),
		nullString(rec.IPAddress),
		nullString(rec.UserAgent),
		nullString(rec.SessionID),
		nullString(rec.HTTPMethod),
		nullString(rec.Endpoint),
		nullInt64(rec.ExecutionTimeMs),
		nullString(rec.Status),
		nullString(rec.ErrorMessage),
		nullInt(rec.ResponseCode),
		nullString(rec.SourceService),
		nullString(rec.ServiceVersion),
		nullString(rec.Environment),
		rec.OccurredAt.UTC(),
	}
}

// classify annotates server errors with their SQLSTATE so operators can
// tell constraint violations from connectivity problems in the logs.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("postgres: persist audit record (%s %s): %w", pqErr.Code, pqErr.Code.Name(), err)
	}
	return fmt.Errorf("postgres: persist audit record: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt32 {
	if p == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*p), Valid: true}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ store.AuditStore = (*AuditStore)(nil)
