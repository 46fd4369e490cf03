package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/support-desk/internal/model"
)

// DefaultSQLitePath is used when no database URL is configured.
const DefaultSQLitePath = "data/support.db"

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes inserts to avoid SQLITE_BUSY
}

// NewSQLite creates a SQLite-backed repository at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		email TEXT,
		phone TEXT,
		agent_id TEXT,
		session_id TEXT,
		escalated INTEGER NOT NULL DEFAULT 0,
		escalated_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_escalated ON conversations(escalated, session_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEscalation inserts one escalation record.
func (s *SQLiteStore) SaveEscalation(ctx context.Context, rec *model.EscalationRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var escalatedAt sql.NullInt64
	if rec.EscalatedAt != nil {
		escalatedAt = sql.NullInt64{Int64: rec.EscalatedAt.UnixNano(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (created_at, summary, email, phone, agent_id, session_id, escalated, escalated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.CreatedAt.UnixNano(),
		rec.Summary,
		nullString(rec.Email),
		nullString(rec.Phone),
		nullString(rec.AgentID),
		nullString(rec.SessionID),
		boolToInt(rec.Escalated),
		escalatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListEscalated returns the restorable escalation records.
func (s *SQLiteStore) ListEscalated(ctx context.Context) ([]model.EscalationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, summary, email, phone, agent_id, session_id, escalated, escalated_at
		FROM conversations
		WHERE escalated = 1 AND agent_id IS NOT NULL AND session_id IS NOT NULL
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
			createdAt                        int64
			email, phone, agentID, sessionID sql.NullString
			escalated                        int
			escalatedAt                      sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Summary, &email, &phone, &agentID, &sessionID, &escalated, &escalatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}

		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		rec.Email = email.String
		rec.Phone = phone.String
		rec.AgentID = agentID.String
		rec.SessionID = sessionID.String
		rec.Escalated = escalated == 1
		if escalatedAt.Valid {
			t := time.Unix(0, escalatedAt.Int64).UTC()
			rec.EscalatedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
