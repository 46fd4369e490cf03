package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capitalize-ai/support-desk/internal/model"
)

// PostgresStore implements Repository using a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			summary TEXT NOT NULL DEFAULT '',
			email TEXT,
			phone TEXT,
			agent_id TEXT,
			session_id TEXT,
			escalated BOOLEAN NOT NULL DEFAULT FALSE,
			escalated_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_escalated ON conversations(escalated, session_id);
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveEscalation inserts one escalation record.
func (s *PostgresStore) SaveEscalation(ctx context.Context, rec *model.EscalationRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (summary, email, phone, agent_id, session_id, escalated, escalated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7)
		RETURNING id, created_at
	`,
		rec.Summary,
		rec.Email,
		rec.Phone,
		rec.AgentID,
		rec.SessionID,
		rec.Escalated,
		rec.EscalatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// ListEscalated returns the restorable escalation records.
func (s *PostgresStore) ListEscalated(ctx context.Context) ([]model.EscalationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, summary, email, phone, agent_id, session_id, escalated, escalated_at
		FROM conversations
		WHERE escalated AND agent_id IS NOT NULL AND session_id IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var out []model.EscalationRecord
	for rows.Next() {
		var (
			rec                              model.EscalationRecord
			email, phone, agentID, sessionID *string
			escalatedAt                      *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Summary, &email, &phone, &agentID, &sessionID, &rec.Escalated, &escalatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		rec.Email = deref(email)
		rec.Phone = deref(phone)
		rec.AgentID = deref(agentID)
		rec.SessionID = deref(sessionID)
		rec.EscalatedAt = escalatedAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
