package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/internal/model"
	"github.com/capitalize-ai/support-desk/internal/session"
	"github.com/capitalize-ai/support-desk/internal/store"
	"github.com/capitalize-ai/support-desk/pkg/logger"
	"github.com/capitalize-ai/support-desk/pkg/metrics"
)

// EventPublisher appends lifecycle events to the event log.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event model.SupportEvent) (uint64, error)
}

// PersistenceBridge writes durable state on a best-effort basis and restores it at
// startup. Failures are logged and counted, never propagated into the chat path.
// Any collaborator may be nil.
type PersistenceBridge struct {
	repo        store.Repository
	transcripts store.TranscriptStore
	events      EventPublisher
	logger      *logger.Logger
	timeout     time.Duration
}

// NewPersistenceBridge creates a bridge over the given collaborators.
func NewPersistenceBridge(repo store.Repository, transcripts store.TranscriptStore, events EventPublisher, log *logger.Logger) *PersistenceBridge {
	if log == nil {
		log = logger.Nop()
	}
	return &PersistenceBridge{
		repo:        repo,
		transcripts: transcripts,
		events:      events,
		logger:      log,
		timeout:     5 * time.Second,
	}
}

// writeContext detaches from the caller so a disconnecting client does not abort
// the write.
func (b *PersistenceBridge) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
}

// RecordEscalation writes the escalation record and publishes the escalated event.
// The returned error joins every failure and is informational only.
func (b *PersistenceBridge) RecordEscalation(ctx context.Context, rec model.EscalationRecord, reason string) error {
	ctx, cancel := b.writeContext(ctx)
	defer cancel()

	log := b.logger.WithAgent(rec.AgentID, rec.SessionID)
	var errs []error

	if b.repo != nil {
		if err := b.repo.SaveEscalation(ctx, &rec); err != nil {
			metrics.PersistenceFailures.WithLabelValues("save_escalation").Inc()
			log.Error("failed to save escalation record", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := b.publish(ctx, model.SupportEvent{
		Type:      model.EventTypeEscalated,
		SessionID: rec.SessionID,
		AgentID:   rec.AgentID,
		Reason:    reason,
		Summary:   rec.Summary,
	}); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RecordClaim publishes the claimed event.
func (b *PersistenceBridge) RecordClaim(ctx context.Context, agent model.AgentSession) error {
	ctx, cancel := b.writeContext(ctx)
	defer cancel()

	return b.publish(ctx, model.SupportEvent{
		Type:      model.EventTypeClaimed,
		SessionID: agent.SessionID,
		AgentID:   agent.AgentID,
	})
}

func (b *PersistenceBridge) publish(ctx context.Context, ev model.SupportEvent) error {
	if b.events == nil {
		return nil
	}
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()

	seq, err := b.events.PublishEvent(ctx, ev)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("publish_" + string(ev.Type)).Inc()
		b.logger.Error("failed to publish support event",
			zap.String("type", string(ev.Type)),
			zap.String("session_id", ev.SessionID),
			zap.Error(err),
		)
		return err
	}

	b.logger.Debug("support event published", zap.String("type", string(ev.Type)), zap.Uint64("seq", seq))
	return nil
}

// RecordMessage appends msg to the durable transcript when one is configured.
func (b *PersistenceBridge) RecordMessage(ctx context.Context, sessionID string, msg model.Message) {
	if b.transcripts == nil {
		return
	}
	ctx, cancel := b.writeContext(ctx)
	defer cancel()

	if err := b.transcripts.Append(ctx, sessionID, msg); err != nil {
		metrics.PersistenceFailures.WithLabelValues("append_transcript").Inc()
		b.logger.WithSession(sessionID).Error("failed to append transcript", zap.Error(err))
	}
}

// Rehydrate restores every durable escalation into st and returns how many were applied.
func (b *PersistenceBridge) Rehydrate(ctx context.Context, st *session.Store) (int, error) {
	if b.repo == nil {
		return 0, nil
	}

	records, err := b.repo.ListEscalated(ctx)
	if err != nil {
		return 0, err
	}

	for _, rec := range records {
		var history []model.Message
		if b.transcripts != nil {
			history, err = b.transcripts.Load(ctx, rec.SessionID)
			if err != nil {
				b.logger.WithSession(rec.SessionID).Warn("failed to load transcript", zap.Error(err))
				history = nil
			}
		}

		at := rec.CreatedAt
		if rec.EscalatedAt != nil {
			at = *rec.EscalatedAt
		}

		st.Restore(rec.SessionID, rec.AgentID, at, history)
		b.logger.Info("restored escalated session",
			zap.String("session_id", rec.SessionID),
			zap.String("agent_id", rec.AgentID),
			zap.Int("messages", len(history)),
		)
	}
	return len(records), nil
}
