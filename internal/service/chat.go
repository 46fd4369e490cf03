// Package service orchestrates customer turns, agent replies and escalation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-desk/internal/confidence"
	"github.com/capitalize-ai/support-desk/internal/escalation"
	"github.com/capitalize-ai/support-desk/internal/intent"
	"github.com/capitalize-ai/support-desk/internal/llm"
	"github.com/capitalize-ai/support-desk/internal/model"
	"github.com/capitalize-ai/support-desk/internal/retrieval"
	"github.com/capitalize-ai/support-desk/internal/session"
	"github.com/capitalize-ai/support-desk/pkg/logger"
	"github.com/capitalize-ai/support-desk/pkg/metrics"
)

// ConfidenceThreshold is reported in session status for the agent console.
const ConfidenceThreshold = 0.4

const (
	forwardedToAgent = "Your message has been sent to the human agent. They will respond shortly."
	awaitingAgent    = "This conversation has been escalated to a human agent. Please wait for their response."
	handoffNotice    = "Thank you. I'm connecting you to a human agent now. Your session ID is: %s"
)

var (
	// ErrInvalidInput is returned for empty ids or messages.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream is returned when no reply could be synthesized.
	ErrUpstream = errors.New("completion failed")
)

// Notifier pushes events to live duplex connections. Undeliverable events are dropped.
type Notifier interface {
	SendToSession(ctx context.Context, sessionID string, v any) bool
	SendToAgent(ctx context.Context, agentID string, v any) bool
}

// presence is implemented by notifiers that know which parties are connected.
type presence interface {
	HasSession(sessionID string) bool
	HasAgent(agentID string) bool
}

type nopNotifier struct{}

func (nopNotifier) SendToSession(context.Context, string, any) bool { return false }
func (nopNotifier) SendToAgent(context.Context, string, any) bool   { return false }

// Options tunes the chat pipeline.
type Options struct {
	Persona          string
	Brand            string
	TopK             int
	LLMTimeout       time.Duration
	RetrievalTimeout time.Duration
	Policy           escalation.Policy
}

// ChatService handles both sides of a support conversation.
type ChatService struct {
	store      *session.Store
	llm        llm.Client
	retriever  retrieval.Retriever
	classifier *intent.Classifier
	bridge     *PersistenceBridge
	notifier   Notifier
	logger     *logger.Logger
	tracer     trace.Tracer
	opts       Options
	now        func() time.Time
}

// NewChatService creates a chat service. A nil retriever, bridge or notifier is
// replaced by a no-op.
func NewChatService(
	st *session.Store,
	llmClient llm.Client,
	retriever retrieval.Retriever,
	bridge *PersistenceBridge,
	notifier Notifier,
	opts Options,
	log *logger.Logger,
) *ChatService {
	if log == nil {
		log = logger.Nop()
	}
	if retriever == nil {
		retriever = retrieval.Noop{}
	}
	if bridge == nil {
		bridge = NewPersistenceBridge(nil, nil, nil, log)
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.Policy == (escalation.Policy{}) {
		opts.Policy = escalation.DefaultPolicy()
	}

	return &ChatService{
		store:      st,
		llm:        llmClient,
		retriever:  retriever,
		classifier: intent.NewClassifier(opts.Brand),
		bridge:     bridge,
		notifier:   notifier,
		logger:     log,
		tracer:     otel.Tracer("support-desk/service"),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SubmitUserMessage runs one customer turn. On an escalated session the message is
// forwarded to the agent and the assistant is not consulted.
func (s *ChatService) SubmitUserMessage(ctx context.Context, req model.ChatRequest) (*model.ChatReply, error) {
	text := strings.TrimSpace(req.Message)
	if req.SessionID == "" || text == "" {
		return nil, fmt.Errorf("%w: session_id and message are required", ErrInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(attribute.String("session_id", req.SessionID)))
	defer span.End()

	unlock := s.store.Lock(req.SessionID)
	defer unlock()

	log := s.logger.WithSession(req.SessionID)

	sess, created := s.store.GetOrCreate(req.SessionID)
	if created {
		log.Debug("session created")
	}
	if req.Email != "" || req.Phone != "" {
		if err := s.store.SetContact(req.SessionID, model.Contact{Email: req.Email, Phone: req.Phone}); err != nil {
			return nil, err
		}
	}

	userMsg := model.NewUserMessage(text, s.now())
	if err := s.append(ctx, req.SessionID, userMsg); err != nil {
		return nil, err
	}

	if sess.Escalated {
		return s.forward(ctx, sess, userMsg), nil
	}

	docs := s.retrieve(ctx, req.SessionID, text)
	contextText := retrieval.JoinText(docs)

	sess, err := s.store.Get(req.SessionID)
	if err != nil {
		return nil, err
	}

	explicit := s.classifier.WantsHuman(text)

	// The handoff notice needs no model output, so an explicit request still
	// escalates when the completion fails.
	var raw string
	resp, err := s.complete(ctx, chatMessages(BuildSystemPrompt(s.opts.Persona, contextText), sess.History))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		log.Error("completion failed", zap.Error(err), zap.Bool("explicit_intent", explicit))
		if !explicit {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
	} else {
		raw = resp.Content
	}

	score, reply := confidence.Extract(raw)
	decision := s.opts.Policy.Decide(escalation.Input{
		Confidence:     score,
		ContextEmpty:   strings.TrimSpace(contextText) == "",
		RetrievedCount: len(docs),
		ExplicitIntent: explicit,
		Greeting:       intent.IsGreeting(text),
		Streak:         sess.LowConfidenceStreak,
		Escalated:      sess.Escalated,
	})

	if err := s.store.SetStreak(req.SessionID, decision.Streak); err != nil {
		return nil, err
	}
	metrics.ConfidenceScore.Observe(decision.Confidence)
	span.SetAttributes(
		attribute.Float64("confidence", decision.Confidence),
		attribute.Int("streak", decision.Streak),
		attribute.Int("retrieved", len(docs)),
	)

	conf := decision.Confidence
	out := &model.ChatReply{
		SessionID:  req.SessionID,
		Confidence: &conf,
		Timestamp:  s.now(),
	}

	if decision.Escalate {
		log.Info("escalation",
			zap.String("reason", string(decision.Reason)),
			zap.Float64("confidence", decision.Confidence),
			zap.Int("streak", decision.Streak),
			zap.Bool("context_empty", strings.TrimSpace(contextText) == ""),
		)

		agent, err := s.escalate(ctx, req.SessionID, decision.Reason)
		if err != nil {
			return nil, err
		}

		notice := model.NewAssistantMessage(fmt.Sprintf(handoffNotice, req.SessionID), conf, out.Timestamp)
		if err := s.append(ctx, req.SessionID, notice); err != nil {
			return nil, err
		}

		out.Reply = notice.Content
		out.Escalated = true
		out.AgentID = agent.AgentID
		return out, nil
	}

	botMsg := model.NewAssistantMessage(reply, conf, out.Timestamp)
	if err := s.append(ctx, req.SessionID, botMsg); err != nil {
		return nil, err
	}
	out.Reply = reply
	return out, nil
}

func (s *ChatService) append(ctx context.Context, sessionID string, msg model.Message) error {
	if err := s.store.Append(sessionID, msg); err != nil {
		return err
	}
	metrics.ChatMessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	s.bridge.RecordMessage(ctx, sessionID, msg)
	return nil
}

// forward hands a customer message on an escalated session to its agent.
func (s *ChatService) forward(ctx context.Context, sess model.ConversationSession, msg model.Message) *model.ChatReply {
	reply := awaitingAgent
	if _, err := s.store.Agent(sess.AgentID); err == nil {
		reply = forwardedToAgent
		s.notifier.SendToAgent(ctx, sess.AgentID, model.UserMessageEvent{
			Type:      model.EventUserMessage,
			SessionID: sess.ID,
			Message:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}

	return &model.ChatReply{
		SessionID: sess.ID,
		Reply:     reply,
		Escalated: true,
		AgentID:   sess.AgentID,
		Forwarded: true,
		Timestamp: s.now(),
	}
}

func (s *ChatService) retrieve(ctx context.Context, sessionID, query string) []retrieval.Document {
	ctx, span := s.tracer.Start(ctx, "retrieval.query")
	defer span.End()

	if s.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RetrievalTimeout)
		defer cancel()
	}

	docs, err := s.retriever.Retrieve(ctx, query, s.opts.TopK)
	if err != nil {
		span.RecordError(err)
		s.logger.WithSession(sessionID).Warn("retrieval failed, continuing without context", zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs
}

func (s *ChatService) complete(ctx context.Context, messages []llm.ChatMessage) (*llm.CompletionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "llm.complete", trace.WithAttributes(attribute.String("provider", s.llm.Name())))
	defer span.End()

	if s.opts.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LLMTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{Messages: messages})
	if err != nil {
		metrics.RecordLLM(s.llm.Name(), "error", time.Since(start).Seconds(), 0, 0)
		span.RecordError(err)
		return nil, err
	}
	metrics.RecordLLM(s.llm.Name(), "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}

// escalate opens the agent session, persists the record and tells the agent side.
// A session that is already escalated keeps its agent and writes nothing.
func (s *ChatService) escalate(ctx context.Context, sessionID string, reason escalation.Reason) (model.AgentSession, error) {
	ctx, span := s.tracer.Start(ctx, "escalation", trace.WithAttributes(attribute.String("reason", string(reason))))
	defer span.End()

	agent, created, err := s.store.Escalate(sessionID)
	if err != nil {
		return model.AgentSession{}, err
	}
	if !created {
		return agent, nil
	}

	metrics.EscalationsTotal.WithLabelValues(string(reason)).Inc()
	s.refreshWaiting()

	sess, err := s.store.Get(sessionID)
	if err != nil {
		return model.AgentSession{}, err
	}

	_ = s.bridge.RecordEscalation(ctx, model.EscalationRecord{
		Summary:     s.summarize(ctx, agent.History),
		Email:       sess.Contact.Email,
		Phone:       sess.Contact.Phone,
		AgentID:     agent.AgentID,
		SessionID:   sessionID,
		Escalated:   true,
		EscalatedAt: sess.EscalatedAt,
	}, string(reason))

	s.notifier.SendToAgent(ctx, agent.AgentID, model.NewEscalatedSessionEvent{
		Type:      model.EventNewEscalatedSession,
		SessionID: sessionID,
		AgentID:   agent.AgentID,
		Message:   "New escalated session: " + sessionID,
	})
	return agent, nil
}

// SubmitAgentMessage records an agent reply and pushes it to the customer.
func (s *ChatService) SubmitAgentMessage(ctx context.Context, req model.AgentMessageRequest) (model.Message, error) {
	text := strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.AgentID == "" || text == "" {
		return model.Message{}, fmt.Errorf("%w: session_id, agent_id and message are required", ErrInvalidInput)
	}

	msg, err := s.store.AppendAgentMessage(req.SessionID, req.AgentID, text)
	if err != nil {
		return model.Message{}, err
	}
	metrics.ChatMessagesTotal.WithLabelValues(string(model.RoleAgent)).Inc()
	s.refreshWaiting()
	s.bridge.RecordMessage(ctx, req.SessionID, msg)

	s.notifier.SendToSession(ctx, req.SessionID, model.AgentMessageEvent{
		Type:      model.EventAgentMessage,
		Message:   msg.Content,
		AgentID:   req.AgentID,
		Timestamp: msg.Timestamp,
	})
	return msg, nil
}

// ClaimSession marks the agent session active.
func (s *ChatService) ClaimSession(ctx context.Context, agentID string) (model.AgentSession, error) {
	agent, err := s.store.Claim(agentID)
	if err != nil {
		return model.AgentSession{}, err
	}
	s.refreshWaiting()
	_ = s.bridge.RecordClaim(ctx, agent)

	s.logger.WithAgent(agent.AgentID, agent.SessionID).Info("session claimed")
	return agent, nil
}

// Status reports escalation and confidence state of a session.
func (s *ChatService) Status(sessionID string) (model.SessionStatus, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return model.SessionStatus{}, err
	}
	return model.SessionStatus{
		SessionID:           sess.ID,
		IsEscalated:         sess.Escalated,
		AgentID:             sess.AgentID,
		EscalatedAt:         sess.EscalatedAt,
		MessageCount:        len(sess.History),
		ConfidenceScores:    sess.ConfidenceHistory,
		LowConfidenceStreak: sess.LowConfidenceStreak,
		ConfidenceThreshold: ConfidenceThreshold,
		CustomerConnected:   s.connected(sess.ID, ""),
		AgentConnected:      sess.AgentID != "" && s.connected("", sess.AgentID),
	}, nil
}

// connected reports live connections when the notifier tracks them.
func (s *ChatService) connected(sessionID, agentID string) bool {
	p, ok := s.notifier.(presence)
	if !ok {
		return false
	}
	if agentID != "" {
		return p.HasAgent(agentID)
	}
	return p.HasSession(sessionID)
}

// History returns the full transcript of a session.
func (s *ChatService) History(sessionID string) (model.SessionHistory, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return model.SessionHistory{}, err
	}
	return model.SessionHistory{
		SessionID:   sess.ID,
		History:     sess.History,
		Escalated:   sess.Escalated,
		AgentID:     sess.AgentID,
		EscalatedAt: sess.EscalatedAt,
	}, nil
}

// Summary summarizes a session for the agent console.
func (s *ChatService) Summary(ctx context.Context, sessionID string) (model.SessionSummary, error) {
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return model.SessionSummary{}, err
	}
	return model.SessionSummary{
		Status:       "success",
		Summary:      s.summarize(ctx, sess.History),
		MessageCount: len(sess.History),
		Escalated:    sess.Escalated,
		AgentID:      sess.AgentID,
		EscalatedAt:  sess.EscalatedAt,
	}, nil
}

func (s *ChatService) summarize(ctx context.Context, history []model.Message) string {
	if len(history) == 0 {
		return noHistory
	}

	resp, err := s.complete(ctx, []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: summaryPrompt},
		{Role: llm.RoleUser, Content: transcript(history)},
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		s.logger.Warn("summary completion failed, using excerpt", zap.Error(err))
		return excerptSummary(history)
	}
	return strings.TrimSpace(resp.Content)
}

// ListWaiting returns agent sessions that nobody has claimed yet.
func (s *ChatService) ListWaiting() model.WaitingSessionsResponse {
	waiting := s.store.Waiting()
	return model.WaitingSessionsResponse{
		EscalatedSessions: waiting,
		TotalWaiting:      len(waiting),
	}
}

// Authorize checks that agentID owns sessionID.
func (s *ChatService) Authorize(agentID, sessionID string) error {
	return s.store.Authorize(agentID, sessionID)
}

// Session returns a copy of the conversation.
func (s *ChatService) Session(sessionID string) (model.ConversationSession, error) {
	return s.store.Get(sessionID)
}

// Agent returns a copy of the agent session.
func (s *ChatService) Agent(agentID string) (model.AgentSession, error) {
	return s.store.Agent(agentID)
}

// CustomerTyping tells the agent that the customer is typing. Only escalated
// sessions have someone to tell.
func (s *ChatService) CustomerTyping(ctx context.Context, sessionID string) bool {
	sess, err := s.store.Get(sessionID)
	if err != nil || !sess.Escalated {
		return false
	}
	return s.notifier.SendToAgent(ctx, sess.AgentID, model.TypingEvent{
		Type:      model.EventUserTyping,
		SessionID: sessionID,
		Timestamp: s.now(),
	})
}

// AgentTyping tells the customer that the agent is typing. An empty sessionID
// falls back to the agent's own session.
func (s *ChatService) AgentTyping(ctx context.Context, agentID, sessionID string) bool {
	if sessionID == "" {
		agent, err := s.store.Agent(agentID)
		if err != nil {
			return false
		}
		sessionID = agent.SessionID
	}
	return s.notifier.SendToSession(ctx, sessionID, model.TypingEvent{
		Type:      model.EventAgentTyping,
		SessionID: sessionID,
		Timestamp: s.now(),
	})
}

// Rehydrate restores durable escalations into the store.
func (s *ChatService) Rehydrate(ctx context.Context) (int, error) {
	n, err := s.bridge.Rehydrate(ctx, s.store)
	s.refreshWaiting()
	return n, err
}

func (s *ChatService) refreshWaiting() {
	metrics.WaitingSessions.Set(float64(len(s.store.Waiting())))
}
