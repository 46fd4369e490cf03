// Package store provides durable persistence for escalation records and transcripts.
package store

import (
	"context"
	"strings"

	"github.com/capitalize-ai/support-desk/internal/model"
)

// Repository persists one record per escalation.
type Repository interface {
	// SaveEscalation inserts rec and fills in its ID and CreatedAt.
	SaveEscalation(ctx context.Context, rec *model.EscalationRecord) error

	// ListEscalated returns every escalated record with an agent and session id,
	// oldest first.
	ListEscalated(ctx context.Context) ([]model.EscalationRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// TranscriptStore keeps a copy of each conversation's messages.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, msg model.Message) error
	Load(ctx context.Context, sessionID string) ([]model.Message, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns a Postgres repository for postgres:// URLs and a SQLite one otherwise.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	if IsPostgresURL(databaseURL) {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	lite, err := NewSQLite(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// IsPostgresURL reports whether url names a Postgres database.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}
