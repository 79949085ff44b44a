package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/conversation"
	"github.com/neodify/neodify/pkg/provider"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

type fakeProvider struct {
	events  []provider.Event
	result  provider.Result
	err     error
	release chan struct{}

	mu       sync.Mutex
	requests []provider.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) lastRequest() provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeProvider) Run(_ context.Context, req provider.Request) (provider.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	for _, ev := range f.events {
		req.OnEvent(ev)
	}
	if f.err != nil {
		return provider.Result{}, f.err
	}
	return f.result, nil
}

type fakeSelector struct {
	p provider.Provider
}

func (f fakeSelector) ForModel(string) (provider.Provider, error) {
	return f.p, nil
}

func newTestService(t *testing.T, p provider.Provider) (*Service, *store.Store, *Bus) {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dataDir := t.TempDir()
	logger := zerolog.Nop()
	bus := NewBus(logger)
	files := skill.NewFiles(dataDir, logger)

	svc, err := NewService(Config{
		Store:         st,
		Resolver:      agent.NewResolver(st, logger),
		Conversations: conversation.NewTracker(st, dataDir, logger),
		Runtime:       skill.NewRuntime(files, logger),
		Providers:     fakeSelector{p: p},
		Bus:           bus,
		Guard:         NewGuard(),
		Logger:        logger,
	})
	require.NoError(t, err)
	return svc, st, bus
}

func seedAgent(t *testing.T, st *store.Store, id string, enabled bool) {
	t.Helper()
	now := time.Now().UnixMilli()
	require.NoError(t, st.UpsertAgent(store.Agent{
		ID:        id,
		Name:      "Test Agent",
		Enabled:   enabled,
		Model:     "claude-sonnet-4",
		MaxTokens: 1024,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func waitTerminal(t *testing.T, st *store.Store, runID string) *store.Run {
	t.Helper()
	var rec *store.Run
	require.Eventually(t, func() bool {
		var err error
		rec, err = st.GetRun(runID)
		return err == nil && rec != nil && rec.Status != store.RunStatusRunning
	}, 2*time.Second, 10*time.Millisecond)
	return rec
}

func TestExecuteSuccess(t *testing.T) {
	p := &fakeProvider{
		events: []provider.Event{
			{Type: "agent.stream_event", Payload: map[string]any{"type": "text_delta"}},
			{Type: "agent.assistant", Payload: map[string]any{"text": "hello"}},
		},
		result: provider.Result{Text: "hello", TotalCostUSD: 0.002, SessionID: "sess_abc"},
	}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	receipt, err := svc.Execute(context.Background(), Input{
		AgentID: "agent-1",
		Prompt:  "say hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.RunID)
	require.NotEmpty(t, receipt.ConversationID)

	rec := waitTerminal(t, st, receipt.RunID)
	assert.Equal(t, store.RunStatusCompleted, rec.Status)
	require.NotNil(t, rec.Output)
	assert.Equal(t, "hello", rec.Output.Text)
	assert.InDelta(t, 0.002, rec.Cost.TotalCostUSD, 1e-9)
	require.NotNil(t, rec.LatencyMs)
	require.NotNil(t, rec.SessionID)
	assert.Equal(t, "sess_abc", *rec.SessionID)

	events, err := st.ListEventsByRun(receipt.RunID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq, "sequence must be gapless from 1")
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{
		EventRunStarted,
		EventAgentResolved,
		EventSkillRuntimePrepared,
		"agent.stream_event",
		"agent.assistant",
		EventRunCompleted,
	}, types)

	conv, err := st.GetConversation(receipt.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.SessionID)
	assert.Equal(t, "sess_abc", *conv.SessionID)
}

func TestExecuteProviderFailure(t *testing.T) {
	p := &fakeProvider{err: fmt.Errorf("model backend unreachable")}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	receipt, err := svc.Execute(context.Background(), Input{AgentID: "agent-1", Prompt: "hi"})
	require.NoError(t, err)

	rec := waitTerminal(t, st, receipt.RunID)
	assert.Equal(t, store.RunStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMsg)
	assert.Contains(t, *rec.ErrorMsg, "model backend unreachable")

	events, err := st.ListEventsByRun(receipt.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, EventRunFailed, events[len(events)-1].Type)
}

func TestExecuteAgentUnavailable(t *testing.T) {
	svc, st, _ := newTestService(t, &fakeProvider{})
	seedAgent(t, st, "agent-disabled", false)

	for _, agentID := range []string{"agent-missing", "agent-disabled"} {
		receipt, err := svc.Execute(context.Background(), Input{AgentID: agentID, Prompt: "hi"})
		require.NoError(t, err)

		rec := waitTerminal(t, st, receipt.RunID)
		assert.Equal(t, store.RunStatusFailed, rec.Status)
		require.NotNil(t, rec.ErrorMsg)
		assert.Equal(t, agent.ErrAgentUnavailable.Error(), *rec.ErrorMsg)
	}
}

func TestExecuteValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeProvider{})

	_, err := svc.Execute(context.Background(), Input{Prompt: "hi"})
	require.Error(t, err)

	_, err = svc.Execute(context.Background(), Input{AgentID: "agent-1"})
	require.Error(t, err)

	_, err = svc.Execute(context.Background(), Input{AgentID: "agent-1", Prompt: "hi", Source: "webhook"})
	require.Error(t, err)
}

func TestExecuteDuplicateRunID(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{release: release, result: provider.Result{Text: "done"}}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	receipt, err := svc.Execute(context.Background(), Input{
		AgentID: "agent-1",
		Prompt:  "hi",
		RunID:   "run_fixed",
	})
	require.NoError(t, err)
	assert.Equal(t, "run_fixed", receipt.RunID)

	_, err = svc.Execute(context.Background(), Input{
		AgentID: "agent-1",
		Prompt:  "hi again",
		RunID:   "run_fixed",
	})
	assert.ErrorIs(t, err, ErrRunInFlight)

	close(release)
	rec := waitTerminal(t, st, "run_fixed")
	assert.Equal(t, store.RunStatusCompleted, rec.Status)

	events, err := st.ListEventsByRun("run_fixed")
	require.NoError(t, err)
	started := 0
	for _, ev := range events {
		if ev.Type == EventRunStarted {
			started++
		}
	}
	assert.Equal(t, 1, started, "duplicate invocation must not emit a second run.started")
}

func TestExecutePublishesToSubscribers(t *testing.T) {
	p := &fakeProvider{
		events: []provider.Event{{Type: "agent.assistant", Payload: map[string]any{"text": "hi"}}},
		result: provider.Result{Text: "hi"},
	}
	svc, st, bus := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	received := make(chan store.RunEvent, 16)
	unsubscribe := bus.Subscribe("run_sub", func(event store.RunEvent) {
		received <- event
	})
	defer unsubscribe()

	_, err := svc.Execute(context.Background(), Input{
		AgentID: "agent-1",
		Prompt:  "hi",
		RunID:   "run_sub",
	})
	require.NoError(t, err)
	waitTerminal(t, st, "run_sub")

	var seqs []int
	timeout := time.After(2 * time.Second)
	for len(seqs) < 5 {
		select {
		case ev := <-received:
			seqs = append(seqs, ev.Seq)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", seqs)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seqs)
}

func TestExecuteReplaysConversationHistory(t *testing.T) {
	p := &fakeProvider{result: provider.Result{Text: "the capital is Paris"}}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	first, err := svc.Execute(context.Background(), Input{
		AgentID: "agent-1",
		Prompt:  "capital of France?",
	})
	require.NoError(t, err)
	waitTerminal(t, st, first.RunID)
	assert.Empty(t, p.lastRequest().History, "first turn has no history")

	second, err := svc.Execute(context.Background(), Input{
		AgentID:        "agent-1",
		Prompt:         "and its population?",
		ConversationID: first.ConversationID,
	})
	require.NoError(t, err)
	waitTerminal(t, st, second.RunID)

	history := p.lastRequest().History
	require.Len(t, history, 1)
	assert.Equal(t, "capital of France?", history[0].Prompt)
	assert.Equal(t, "the capital is Paris", history[0].Response)
}

func TestExecuteInjectsSkillInstructions(t *testing.T) {
	p := &fakeProvider{result: provider.Result{Text: "ok"}}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	dir := t.TempDir()
	mdPath := filepath.Join(dir, "SKILL.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("# Brevity\nAlways answer in one sentence."), 0o644))

	now := time.Now().UnixMilli()
	require.NoError(t, st.UpsertSkill(store.Skill{
		ID: "brevity", Name: "brevity", RootPath: dir, SkillMDPath: mdPath,
		Enabled: true, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.ReplaceSkillBindings("agent-1", []store.SkillBinding{
		{AgentID: "agent-1", SkillID: "brevity", Enabled: true, Priority: 1},
	}))

	receipt, err := svc.Execute(context.Background(), Input{AgentID: "agent-1", Prompt: "hi"})
	require.NoError(t, err)
	waitTerminal(t, st, receipt.RunID)

	req := p.lastRequest()
	assert.Contains(t, req.SystemPrompt, `<skill name="brevity">`)
	assert.Contains(t, req.SystemPrompt, "Always answer in one sentence.")
}

func TestExecuteTurnIndexAdvances(t *testing.T) {
	p := &fakeProvider{result: provider.Result{Text: "ok"}}
	svc, st, _ := newTestService(t, p)
	seedAgent(t, st, "agent-1", true)

	first, err := svc.Execute(context.Background(), Input{AgentID: "agent-1", Prompt: "one"})
	require.NoError(t, err)
	waitTerminal(t, st, first.RunID)

	second, err := svc.Execute(context.Background(), Input{
		AgentID:        "agent-1",
		Prompt:         "two",
		ConversationID: first.ConversationID,
	})
	require.NoError(t, err)
	waitTerminal(t, st, second.RunID)

	assert.Equal(t, first.ConversationID, second.ConversationID)

	rec1, err := st.GetRun(first.RunID)
	require.NoError(t, err)
	rec2, err := st.GetRun(second.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec1.TurnIndex)
	assert.Equal(t, 2, rec2.TurnIndex)
}
