package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-desk/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "support.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSaveAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Ping(ctx))

	at := time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC)
	rec := &model.EscalationRecord{
		Summary:     "customer asked for a human",
		Email:       "a@example.com",
		AgentID:     "agent_1234abcd",
		SessionID:   "s1",
		Escalated:   true,
		EscalatedAt: &at,
	}
	require.NoError(t, s.SaveEscalation(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	// not restorable: no agent id
	require.NoError(t, s.SaveEscalation(ctx, &model.EscalationRecord{Summary: "plain", SessionID: "s2"}))

	second := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveEscalation(ctx, &model.EscalationRecord{
		AgentID: "agent_2", SessionID: "s3", Escalated: true, EscalatedAt: &second,
	}))

	got, err := s.ListEscalated(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "agent_1234abcd", got[0].AgentID)
	assert.Equal(t, "a@example.com", got[0].Email)
	assert.Empty(t, got[0].Phone)
	assert.True(t, got[0].Escalated)
	require.NotNil(t, got[0].EscalatedAt)
	assert.True(t, at.Equal(*got[0].EscalatedAt))

	assert.Equal(t, "s3", got[1].SessionID)
}

func TestSQLitePragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)

		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)
	}
}

func TestSQLiteReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "support.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s.SaveEscalation(ctx, &model.EscalationRecord{
		AgentID: "agent_1", SessionID: "s1", Escalated: true, EscalatedAt: &now,
	}))
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ListEscalated(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenPicksBackend(t *testing.T) {
	assert.True(t, IsPostgresURL("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresURL("postgresql://localhost/db"))
	assert.False(t, IsPostgresURL("data/support.db"))

	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer repo.Close()
	_, ok := repo.(*SQLiteStore)
	assert.True(t, ok)
}

func TestPostgresSaveAndList(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	now := time.Now().UTC()
	sessionID := "pg-test-" + now.Format("150405.000000000")
	rec := &model.EscalationRecord{AgentID: "agent_pg", SessionID: sessionID, Escalated: true, EscalatedAt: &now}
	require.NoError(t, s.SaveEscalation(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := s.ListEscalated(ctx)
	require.NoError(t, err)
	found := false
	for _, r := range got {
		if r.SessionID == sessionID {
			found = true
			assert.Empty(t, r.Email)
		}
	}
	assert.True(t, found)
}

func TestRedisTranscripts(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisTranscripts(ctx, url, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	sessionID := "redis-test-" + time.Now().Format("150405.000000000")
	first := model.NewUserMessage("hi", time.Now().UTC())
	second := model.NewAssistantMessage("hello", 0.9, time.Now().UTC())
	require.NoError(t, s.Append(ctx, sessionID, first))
	require.NoError(t, s.Append(ctx, sessionID, second))

	got, err := s.Load(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	empty, err := s.Load(ctx, "missing-"+sessionID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
