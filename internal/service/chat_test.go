package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-desk/internal/llm"
	"github.com/capitalize-ai/support-desk/internal/model"
	"github.com/capitalize-ai/support-desk/internal/retrieval"
	"github.com/capitalize-ai/support-desk/internal/session"
)

// fakeLLM answers summary requests with summaryReply and chat turns with reply.
type fakeLLM struct {
	mu           sync.Mutex
	reply        func(req *llm.CompletionRequest) (string, error)
	summaryReply string
	summaryErr   error
	chatCalls    int
	lastSystem   string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.Messages[0].Content == summaryPrompt {
		if f.summaryErr != nil {
			return nil, f.summaryErr
		}
		return &llm.CompletionResponse{Content: f.summaryReply}, nil
	}

	f.chatCalls++
	f.lastSystem = req.Messages[0].Content
	text, err := f.reply(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: text}, nil
}

func constReply(s string) func(*llm.CompletionRequest) (string, error) {
	return func(*llm.CompletionRequest) (string, error) { return s, nil }
}

type fakeRetriever struct {
	docs []retrieval.Document
	err  error
}

func (f fakeRetriever) Retrieve(context.Context, string, int) ([]retrieval.Document, error) {
	return f.docs, f.err
}

type sent struct {
	target string
	id     string
	v      any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeNotifier) SendToSession(_ context.Context, id string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"session", id, v})
	return true
}

func (f *fakeNotifier) SendToAgent(_ context.Context, id string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{"agent", id, v})
	return true
}

func (f *fakeNotifier) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeRepo struct {
	mu      sync.Mutex
	records []model.EscalationRecord
	saveErr error
}

func (f *fakeRepo) SaveEscalation(_ context.Context, rec *model.EscalationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	rec.ID = int64(len(f.records) + 1)
	rec.CreatedAt = time.Now().UTC()
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRepo) ListEscalated(context.Context) ([]model.EscalationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EscalationRecord(nil), f.records...), nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

type fakeTranscripts struct {
	mu   sync.Mutex
	msgs map[string][]model.Message
}

func newFakeTranscripts() *fakeTranscripts {
	return &fakeTranscripts{msgs: make(map[string][]model.Message)}
}

func (f *fakeTranscripts) Append(_ context.Context, id string, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[id] = append(f.msgs[id], msg)
	return nil
}

func (f *fakeTranscripts) Load(_ context.Context, id string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.msgs[id]...), nil
}

func (f *fakeTranscripts) Ping(context.Context) error { return nil }
func (f *fakeTranscripts) Close() error               { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []model.SupportEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, ev model.SupportEvent) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, ev)
	return uint64(len(f.events)), nil
}

type harness struct {
	svc       *ChatService
	store     *session.Store
	llm       *fakeLLM
	notifier  *fakeNotifier
	repo      *fakeRepo
	publisher *fakePublisher
}

func newHarness(t *testing.T, reply func(*llm.CompletionRequest) (string, error), retriever retrieval.Retriever) *harness {
	t.Helper()
	h := &harness{
		store:     session.NewStore(),
		llm:       &fakeLLM{reply: reply, summaryReply: "Customer asked for a human."},
		notifier:  &fakeNotifier{},
		repo:      &fakeRepo{},
		publisher: &fakePublisher{},
	}
	bridge := NewPersistenceBridge(h.repo, nil, h.publisher, nil)
	h.svc = NewChatService(h.store, h.llm, retriever, bridge, h.notifier, Options{}, nil)
	return h
}

func chat(t *testing.T, svc *ChatService, sessionID, msg string) *model.ChatReply {
	t.Helper()
	out, err := svc.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: sessionID, Message: msg})
	require.NoError(t, err)
	return out
}

func TestEndToEndGreetingThenHandoff(t *testing.T) {
	h := newHarness(t, constReply("Hello! How can I help you today? [CONFIDENCE: 0.9]"), nil)

	first := chat(t, h.svc, "s1", "hello")
	assert.False(t, first.Escalated)
	require.NotNil(t, first.Confidence)
	assert.GreaterOrEqual(t, *first.Confidence, 0.8)
	assert.LessOrEqual(t, *first.Confidence, 0.95)
	assert.Equal(t, "Hello! How can I help you today?", first.Reply)

	hist, err := h.svc.History("s1")
	require.NoError(t, err)
	assert.Len(t, hist.History, 2)

	second := chat(t, h.svc, "s1", "connect me to a human")
	assert.True(t, second.Escalated)
	require.NotEmpty(t, second.AgentID)
	assert.Equal(t, "Thank you. I'm connecting you to a human agent now. Your session ID is: s1", second.Reply)

	hist, err = h.svc.History("s1")
	require.NoError(t, err)
	assert.Len(t, hist.History, 4)
	assert.True(t, hist.Escalated)

	agent, err := h.store.Agent(second.AgentID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusWaiting, agent.Status)
	assert.Equal(t, "s1", agent.SessionID)

	require.Len(t, h.repo.records, 1)
	rec := h.repo.records[0]
	assert.Equal(t, "Customer asked for a human.", rec.Summary)
	assert.Equal(t, second.AgentID, rec.AgentID)
	assert.True(t, rec.Escalated)
	require.NotNil(t, rec.EscalatedAt)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, model.EventTypeEscalated, h.publisher.events[0].Type)
	assert.Equal(t, "explicit_user_request", h.publisher.events[0].Reason)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "agent", notes[0].target)
	assert.Equal(t, second.AgentID, notes[0].id)
	ev, ok := notes[0].v.(model.NewEscalatedSessionEvent)
	require.True(t, ok)
	assert.Equal(t, "New escalated session: s1", ev.Message)
}

func TestExplicitRequestEscalatesOnFirstMessage(t *testing.T) {
	h := newHarness(t, constReply("Sure. [CONFIDENCE: 0.9]"), nil)

	out := chat(t, h.svc, "s1", "can I speak to a human agent")
	assert.True(t, out.Escalated)

	status, err := h.svc.Status("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.LowConfidenceStreak)
	assert.True(t, status.IsEscalated)
	assert.Equal(t, ConfidenceThreshold, status.ConfidenceThreshold)
}

func TestTwoLowConfidenceRepliesWithoutContextEscalate(t *testing.T) {
	h := newHarness(t, constReply("I really cannot say. [CONFIDENCE: 0.1]"), nil)

	first := chat(t, h.svc, "s1", "what is the airspeed of a swallow")
	assert.False(t, first.Escalated)

	second := chat(t, h.svc, "s1", "and of a laden one")
	assert.True(t, second.Escalated)
	assert.Len(t, h.repo.records, 1)
	assert.Equal(t, "auto_low_confidence", h.publisher.events[0].Reason)
}

func TestLowConfidenceWithContextIsFloored(t *testing.T) {
	docs := []retrieval.Document{{ID: "d1", Text: "We offer 24/7 managed SRE."}}
	h := newHarness(t, constReply("Hmm. [CONFIDENCE: 0.1]"), fakeRetriever{docs: docs})

	for i := 0; i < 3; i++ {
		out := chat(t, h.svc, "s1", "tell me about your SRE services")
		assert.False(t, out.Escalated)
		require.NotNil(t, out.Confidence)
		assert.GreaterOrEqual(t, *out.Confidence, 0.35)
	}
	assert.Contains(t, h.llm.lastSystem, "We offer 24/7 managed SRE.")
}

func TestGreetingsNeverEscalate(t *testing.T) {
	h := newHarness(t, constReply("?? [CONFIDENCE: 0.05]"), nil)

	for _, msg := range []string{"hi", "hello", "good morning", "hey"} {
		out := chat(t, h.svc, "s1", msg)
		assert.False(t, out.Escalated, msg)
	}
	assert.Empty(t, h.repo.records)
}

func TestBrandMentionDoesNotEscalate(t *testing.T) {
	h := newHarness(t, constReply("Thanks, we love you too! [CONFIDENCE: 0.9]"), nil)
	out := chat(t, h.svc, "s1", "I love SupportSages")
	assert.False(t, out.Escalated)
}

func TestEscalatedSessionBypassesAssistant(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	first := chat(t, h.svc, "s1", "talk to a human")
	require.True(t, first.Escalated)
	calls := h.llm.chatCalls

	out := chat(t, h.svc, "s1", "are you there?")
	assert.True(t, out.Escalated)
	assert.True(t, out.Forwarded)
	assert.Equal(t, first.AgentID, out.AgentID)
	assert.Equal(t, forwardedToAgent, out.Reply)
	assert.Equal(t, calls, h.llm.chatCalls)
	assert.Len(t, h.repo.records, 1)

	notes := h.notifier.all()
	last := notes[len(notes)-1]
	assert.Equal(t, first.AgentID, last.id)
	ev, ok := last.v.(model.UserMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "are you there?", ev.Message)

	agent, err := h.store.Agent(first.AgentID)
	require.NoError(t, err)
	assert.Equal(t, "are you there?", agent.History[len(agent.History)-1].Content)
}

func TestCompletionFailureSurfaces(t *testing.T) {
	h := newHarness(t, func(*llm.CompletionRequest) (string, error) {
		return "", errors.New("rate limited")
	}, nil)

	_, err := h.svc.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: "s1", Message: "help me"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestExplicitRequestEscalatesWhenCompletionFails(t *testing.T) {
	h := newHarness(t, func(*llm.CompletionRequest) (string, error) {
		return "", errors.New("down")
	}, nil)
	h.llm.summaryErr = errors.New("down")

	out := chat(t, h.svc, "s1", "can I speak to a human agent")
	assert.True(t, out.Escalated)
	assert.NotEmpty(t, out.AgentID)
	assert.Contains(t, out.Reply, "s1")

	hist, err := h.svc.History("s1")
	require.NoError(t, err)
	require.Len(t, hist.History, 2)
	assert.Equal(t, model.RoleAssistant, hist.History[1].Role)

	require.Len(t, h.repo.records, 1)
	assert.Contains(t, h.repo.records[0].Summary, "can I speak to a human agent")
}

type presenceNotifier struct {
	fakeNotifier
	sessions map[string]bool
	agents   map[string]bool
}

func (p *presenceNotifier) HasSession(id string) bool { return p.sessions[id] }
func (p *presenceNotifier) HasAgent(id string) bool   { return p.agents[id] }

func TestStatusReportsLiveConnections(t *testing.T) {
	st := session.NewStore()
	n := &presenceNotifier{sessions: map[string]bool{}, agents: map[string]bool{}}
	svc := NewChatService(st, &fakeLLM{reply: constReply("Sure. [CONFIDENCE: 0.9]")}, nil, nil, n, Options{}, nil)

	chat(t, svc, "s1", "hello")
	status, err := svc.Status("s1")
	require.NoError(t, err)
	assert.False(t, status.CustomerConnected)
	assert.False(t, status.AgentConnected)

	out := chat(t, svc, "s1", "connect me to a human")
	n.sessions["s1"] = true
	n.agents[out.AgentID] = true

	status, err = svc.Status("s1")
	require.NoError(t, err)
	assert.True(t, status.CustomerConnected)
	assert.True(t, status.AgentConnected)
}

func TestRetrievalFailureDegradesToEmptyContext(t *testing.T) {
	h := newHarness(t, constReply("General answer about our company. [CONFIDENCE: 0.6]"), fakeRetriever{err: errors.New("index down")})

	out := chat(t, h.svc, "s1", "what do you do")
	assert.False(t, out.Escalated)
	assert.Contains(t, h.llm.lastSystem, "NO CONTEXT AVAILABLE")
}

func TestPersistenceFailureDoesNotBlockEscalation(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	h.repo.saveErr = errors.New("disk full")
	h.publisher.err = errors.New("nats down")

	out := chat(t, h.svc, "s1", "I need a supervisor")
	assert.True(t, out.Escalated)
	assert.Len(t, h.store.Waiting(), 1)
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t, constReply("x"), nil)
	_, err := h.svc.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: "s1", Message: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.svc.SubmitAgentMessage(context.Background(), model.AgentMessageRequest{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestContactIsWrittenToRecord(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	_, err := h.svc.SubmitUserMessage(context.Background(), model.ChatRequest{
		SessionID: "s1", Message: "hi", Email: "c@example.com", Phone: "+100",
	})
	require.NoError(t, err)
	chat(t, h.svc, "s1", "talk to a human please")

	require.Len(t, h.repo.records, 1)
	assert.Equal(t, "c@example.com", h.repo.records[0].Email)
	assert.Equal(t, "+100", h.repo.records[0].Phone)
}

func TestAgentReplyFlow(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	esc := chat(t, h.svc, "s1", "talk to a human")
	chat(t, h.svc, "s2", "hello")

	_, err := h.svc.SubmitAgentMessage(context.Background(), model.AgentMessageRequest{SessionID: "s1", AgentID: "agent_nope", Message: "hi"})
	assert.ErrorIs(t, err, session.ErrAgentNotFound)

	_, err = h.svc.SubmitAgentMessage(context.Background(), model.AgentMessageRequest{SessionID: "s2", AgentID: esc.AgentID, Message: "hi"})
	assert.ErrorIs(t, err, session.ErrForbidden)

	msg, err := h.svc.SubmitAgentMessage(context.Background(), model.AgentMessageRequest{SessionID: "s1", AgentID: esc.AgentID, Message: "Hi, Sam here."})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAgent, msg.Role)

	notes := h.notifier.all()
	last := notes[len(notes)-1]
	assert.Equal(t, "session", last.target)
	assert.Equal(t, "s1", last.id)
	ev, ok := last.v.(model.AgentMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "Hi, Sam here.", ev.Message)

	assert.Empty(t, h.svc.ListWaiting().EscalatedSessions)
}

func TestClaimSession(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	esc := chat(t, h.svc, "s1", "talk to a human")

	waiting := h.svc.ListWaiting()
	assert.Equal(t, 1, waiting.TotalWaiting)

	_, err := h.svc.ClaimSession(context.Background(), "agent_nope")
	assert.ErrorIs(t, err, session.ErrAgentNotFound)

	agent, err := h.svc.ClaimSession(context.Background(), esc.AgentID)
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusActive, agent.Status)
	assert.Equal(t, 0, h.svc.ListWaiting().TotalWaiting)

	require.Len(t, h.publisher.events, 2)
	assert.Equal(t, model.EventTypeClaimed, h.publisher.events[1].Type)
}

func TestSummary(t *testing.T) {
	h := newHarness(t, constReply("Hello there! [CONFIDENCE: 0.9]"), nil)

	_, err := h.svc.Summary(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	h.store.GetOrCreate("empty")
	empty, err := h.svc.Summary(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, "No conversation history available.", empty.Summary)
	assert.Equal(t, 0, empty.MessageCount)

	chat(t, h.svc, "s1", "hello")
	sum, err := h.svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Customer asked for a human.", sum.Summary)
	assert.Equal(t, 2, sum.MessageCount)

	h.llm.summaryErr = errors.New("down")
	sum, err = h.svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, `Conversation of 2 messages. Customer opened with: "hello"`, sum.Summary)
}

func TestTypingIndicators(t *testing.T) {
	h := newHarness(t, constReply("ok [CONFIDENCE: 0.9]"), nil)
	chat(t, h.svc, "s0", "hello")
	assert.False(t, h.svc.CustomerTyping(context.Background(), "s0"))

	esc := chat(t, h.svc, "s1", "talk to a human")
	assert.True(t, h.svc.CustomerTyping(context.Background(), "s1"))
	assert.True(t, h.svc.AgentTyping(context.Background(), esc.AgentID, ""))
	assert.False(t, h.svc.AgentTyping(context.Background(), "agent_nope", ""))

	notes := h.notifier.all()
	last := notes[len(notes)-1]
	assert.Equal(t, "s1", last.id)
	ev, ok := last.v.(model.TypingEvent)
	require.True(t, ok)
	assert.Equal(t, model.EventAgentTyping, ev.Type)
}

func TestRehydrateRestoresEscalations(t *testing.T) {
	repo := &fakeRepo{}
	transcripts := newFakeTranscripts()
	llmClient := &fakeLLM{reply: constReply("ok [CONFIDENCE: 0.9]"), summaryReply: "s"}

	first := NewChatService(session.NewStore(), llmClient, nil, NewPersistenceBridge(repo, transcripts, nil, nil), nil, Options{}, nil)
	esc, err := first.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: "s1", Message: "talk to a human"})
	require.NoError(t, err)

	restarted := session.NewStore()
	second := NewChatService(restarted, llmClient, nil, NewPersistenceBridge(repo, transcripts, nil, nil), nil, Options{}, nil)
	n, err := second.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess, err := restarted.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.Escalated)
	assert.Equal(t, esc.AgentID, sess.AgentID)
	assert.Len(t, sess.History, 2)
	require.NoError(t, second.Authorize(esc.AgentID, "s1"))

	calls := llmClient.chatCalls
	out, err := second.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: "s1", Message: "still there?"})
	require.NoError(t, err)
	assert.True(t, out.Forwarded)
	assert.Equal(t, calls, llmClient.chatCalls)
	assert.Len(t, repo.records, 1)
}

func TestConcurrentTurnsOnOneSessionKeepOrder(t *testing.T) {
	h := newHarness(t, constReply("Sure thing, here is a general answer. [CONFIDENCE: 0.7]"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.SubmitUserMessage(context.Background(), model.ChatRequest{SessionID: "s1", Message: "what services do you offer"})
		}()
	}
	wg.Wait()

	hist, err := h.svc.History("s1")
	require.NoError(t, err)
	require.Len(t, hist.History, 20)
	for i, m := range hist.History {
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, m.Role)
		} else {
			assert.Equal(t, model.RoleAssistant, m.Role)
		}
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt("", "")
	assert.Contains(t, p, DefaultPersona)
	assert.Contains(t, p, "NO CONTEXT AVAILABLE")
	assert.Contains(t, p, "[CONFIDENCE: 0.85]")

	p = BuildSystemPrompt("Acme", "Acme sells anvils.")
	assert.Contains(t, p, "You are a professional assistant for Acme.")
	assert.Contains(t, p, "Acme sells anvils.")
	assert.NotContains(t, p, "NO CONTEXT AVAILABLE")
}

func TestTranscriptSkipsAgentTurnsAndCaps(t *testing.T) {
	now := time.Now()
	history := []model.Message{
		model.NewUserMessage("hi", now),
		model.NewAssistantMessage("hello", 0.9, now),
		model.NewAgentMessage("agent here", "agent_1", now),
		model.NewUserMessage(strings.Repeat("x", 6000), now),
	}
	out := transcript(history)
	assert.True(t, strings.HasPrefix(out, "User: hi\nAssistant: hello\nUser: x"))
	assert.NotContains(t, out, "agent here")
	assert.Len(t, []rune(out), summaryMaxChars)
}
