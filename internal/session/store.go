// Package session holds the in-memory conversation and agent session state.
package session

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-desk/internal/model"
)

var (
	// ErrSessionNotFound is returned for an unknown conversation id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAgentNotFound is returned for an unknown agent id.
	ErrAgentNotFound = errors.New("invalid agent ID or session not found")
	// ErrForbidden is returned when an agent id does not own the target session.
	ErrForbidden = errors.New("agent not authorized for this session")
)

// Store is the single source of truth for conversations and their agent sessions
// during the process lifetime. Reads return copies.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.ConversationSession
	agents   map[string]*model.AgentSession

	turnsMu sync.Mutex
	turns   map[string]*sync.Mutex

	newAgentID func() string
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithAgentIDFunc overrides agent id generation.
func WithAgentIDFunc(f func() string) Option {
	return func(s *Store) { s.newAgentID = f }
}

// WithClock overrides the time source.
func WithClock(f func() time.Time) Option {
	return func(s *Store) { s.now = f }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:   make(map[string]*model.ConversationSession),
		agents:     make(map[string]*model.AgentSession),
		turns:      make(map[string]*sync.Mutex),
		newAgentID: NewAgentID,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAgentID generates an id of the form agent_xxxxxxxx.
func NewAgentID() string {
	return "agent_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Lock serializes turns for one conversation. The returned func releases it.
func (s *Store) Lock(sessionID string) func() {
	s.turnsMu.Lock()
	m, ok := s.turns[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.turns[sessionID] = m
	}
	s.turnsMu.Unlock()

	m.Lock()
	return m.Unlock
}

// GetOrCreate returns the session for id, creating it on first use.
func (s *Store) GetOrCreate(id string) (model.ConversationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &model.ConversationSession{
			ID:                id,
			History:           []model.Message{},
			ConfidenceHistory: []float64{},
		}
		s.sessions[id] = sess
	}
	return cloneSession(sess), !ok
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (model.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.ConversationSession{}, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Append adds msg to the session history. Assistant confidence is added to the
// confidence trail, and escalated sessions mirror the message into the agent session.
func (s *Store) Append(id string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.appendLocked(sess, msg)
	return nil
}

func (s *Store) appendLocked(sess *model.ConversationSession, msg model.Message) {
	sess.History = append(sess.History, msg)
	if msg.Role == model.RoleAssistant && msg.Confidence != nil {
		sess.ConfidenceHistory = append(sess.ConfidenceHistory, *msg.Confidence)
	}
	if sess.Escalated {
		if agent, ok := s.agents[sess.AgentID]; ok {
			agent.History = append(agent.History, msg)
		}
	}
}

// SetStreak stores the low-confidence streak.
func (s *Store) SetStreak(id string, streak int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LowConfidenceStreak = streak
	return nil
}

// SetContact merges the non-empty contact fields into the session.
func (s *Store) SetContact(id string, c model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if c.Email != "" {
		sess.Contact.Email = c.Email
	}
	if c.Phone != "" {
		sess.Contact.Phone = c.Phone
	}
	return nil
}

// Escalate marks the session escalated and opens a waiting agent session holding a
// snapshot of the history. The bool is false when the session was already escalated,
// in which case the existing agent session is returned unchanged.
func (s *Store) Escalate(id string) (model.AgentSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.AgentSession{}, false, ErrSessionNotFound
	}

	if sess.Escalated {
		if agent, ok := s.agents[sess.AgentID]; ok {
			return cloneAgent(agent), false, nil
		}
		return model.AgentSession{AgentID: sess.AgentID, SessionID: id, Status: model.AgentStatusWaiting}, false, nil
	}

	agentID := s.newAgentID()
	for {
		if _, taken := s.agents[agentID]; !taken {
			break
		}
		agentID = s.newAgentID()
	}

	at := s.now()
	sess.Escalated = true
	sess.AgentID = agentID
	sess.EscalatedAt = &at

	agent := &model.AgentSession{
		AgentID:     agentID,
		SessionID:   id,
		History:     model.CopyMessages(sess.History),
		Status:      model.AgentStatusWaiting,
		EscalatedAt: at,
	}
	s.agents[agentID] = agent

	return cloneAgent(agent), true, nil
}

// Restore re-applies a durable escalation after a restart. History is used only when
// the session is not already in memory.
func (s *Store) Restore(sessionID, agentID string, escalatedAt time.Time, history []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &model.ConversationSession{
			ID:                sessionID,
			History:           model.CopyMessages(history),
			ConfidenceHistory: []float64{},
		}
		for _, m := range history {
			if m.Role == model.RoleAssistant && m.Confidence != nil {
				sess.ConfidenceHistory = append(sess.ConfidenceHistory, *m.Confidence)
			}
		}
		s.sessions[sessionID] = sess
	}

	at := escalatedAt
	sess.Escalated = true
	sess.AgentID = agentID
	sess.EscalatedAt = &at

	s.agents[agentID] = &model.AgentSession{
		AgentID:     agentID,
		SessionID:   sessionID,
		History:     model.CopyMessages(sess.History),
		Status:      model.AgentStatusWaiting,
		EscalatedAt: at,
	}
}

// Agent returns a copy of the agent session.
func (s *Store) Agent(agentID string) (model.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return model.AgentSession{}, ErrAgentNotFound
	}
	return cloneAgent(agent), nil
}

// Authorize checks that agentID owns sessionID.
func (s *Store) Authorize(agentID, sessionID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authorizeLocked(agentID, sessionID)
}

func (s *Store) authorizeLocked(agentID, sessionID string) error {
	agent, ok := s.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if agent.SessionID != sessionID {
		return ErrForbidden
	}
	return nil
}

// AppendAgentMessage records an agent reply and activates the agent session.
func (s *Store) AppendAgentMessage(sessionID, agentID, content string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(agentID, sessionID); err != nil {
		return model.Message{}, err
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.Message{}, ErrSessionNotFound
	}

	msg := model.NewAgentMessage(content, agentID, s.now())
	s.agents[agentID].Status = model.AgentStatusActive
	s.appendLocked(sess, msg)
	return msg, nil
}

// Claim marks the agent session active.
func (s *Store) Claim(agentID string) (model.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return model.AgentSession{}, ErrAgentNotFound
	}
	agent.Status = model.AgentStatusActive
	return cloneAgent(agent), nil
}

// Waiting lists unclaimed agent sessions, oldest escalation first.
func (s *Store) Waiting() []model.WaitingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.WaitingSession, 0)
	for _, agent := range s.agents {
		if agent.Status != model.AgentStatusWaiting {
			continue
		}
		out = append(out, model.WaitingSession{
			AgentID:      agent.AgentID,
			SessionID:    agent.SessionID,
			EscalatedAt:  agent.EscalatedAt,
			MessageCount: len(agent.History),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EscalatedAt.Equal(out[j].EscalatedAt) {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].EscalatedAt.Before(out[j].EscalatedAt)
	})
	return out
}

func cloneSession(s *model.ConversationSession) model.ConversationSession {
	out := *s
	out.History = model.CopyMessages(s.History)
	out.ConfidenceHistory = append([]float64{}, s.ConfidenceHistory...)
	if s.EscalatedAt != nil {
		at := *s.EscalatedAt
		out.EscalatedAt = &at
	}
	return out
}

func cloneAgent(a *model.AgentSession) model.AgentSession {
	out := *a
	out.History = model.CopyMessages(a.History)
	return out
}
