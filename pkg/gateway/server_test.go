package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/conversation"
	"github.com/neodify/neodify/pkg/provider"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/schedule"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

type scriptedProvider struct {
	events  []provider.Event
	result  provider.Result
	release chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Run(_ context.Context, req provider.Request) (provider.Result, error) {
	if p.release != nil {
		<-p.release
	}
	for _, ev := range p.events {
		req.OnEvent(ev)
	}
	return p.result, nil
}

type scriptedSelector struct{ p provider.Provider }

func (s scriptedSelector) ForModel(string) (provider.Provider, error) { return s.p, nil }

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	token  string
}

const testAPIKey = "svc-key"

func newTestEnv(t *testing.T, p provider.Provider) *testEnv {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dataDir := t.TempDir()
	logger := zerolog.Nop()
	bus := run.NewBus(logger)
	files := skill.NewFiles(dataDir, logger)

	runs, err := run.NewService(run.Config{
		Store:         st,
		Resolver:      agent.NewResolver(st, logger),
		Conversations: conversation.NewTracker(st, dataDir, logger),
		Runtime:       skill.NewRuntime(files, logger),
		Providers:     scriptedSelector{p: p},
		Bus:           bus,
		Guard:         run.NewGuard(),
		Logger:        logger,
	})
	require.NoError(t, err)

	schedules, err := schedule.NewService(st, logger)
	require.NoError(t, err)

	auth, err := NewAuthService(AuthConfig{
		Username: "admin",
		Password: "hunter2",
		Secret:   "secret",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Port:      8321,
		APIKey:    testAPIKey,
		Auth:      auth,
		Store:     st,
		Agents:    agent.NewService(st, logger),
		Runs:      runs,
		Bus:       bus,
		Skills:    files,
		Syncer:    skill.NewSyncer(st, files, logger),
		Schedules: schedules,
		Logger:    logger,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	session, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, session)

	return &testEnv{server: ts, store: st, token: session.Token}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func seedTestAgent(t *testing.T, st *store.Store) {
	t.Helper()
	now := time.Now().UnixMilli()
	require.NoError(t, st.UpsertAgent(store.Agent{
		ID: "agent-1", Name: "Test", Enabled: true, Model: "claude-sonnet-4",
		CreatedAt: now, UpdatedAt: now,
	}))
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	resp := env.request(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/agents", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/agents", env.token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	resp := env.request(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "admin", "password": "hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	resp = env.request(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "admin", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentCRUD(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	resp := env.request(t, http.MethodPost, "/agents", env.token, map[string]any{
		"id": "agent-1", "name": "Agent One", "enabled": true,
		"model": "claude-sonnet-4", "max_tokens": 1024,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/agents/agent-1", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	ag, _ := body["agent"].(map[string]any)
	require.NotNil(t, ag)
	assert.Equal(t, "Agent One", ag["name"])

	resp = env.request(t, http.MethodGet, "/agents/agent-missing", env.token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvokeRunWithAPIKey(t *testing.T) {
	p := &scriptedProvider{result: provider.Result{Text: "done"}}
	env := newTestEnv(t, p)
	seedTestAgent(t, env.store)

	data, _ := json.Marshal(map[string]any{"agent_id": "agent-1", "prompt": "hi"})
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/runs/invoke", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		rec, err := env.store.GetRun(runID)
		return err == nil && rec != nil && rec.Status == store.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// The run detail endpoint serves the durable event log.
	resp = env.request(t, http.MethodGet, "/runs/"+runID, env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody(t, resp)
	events, _ := detail["events"].([]any)
	assert.NotEmpty(t, events)
}

func TestInvokeRunRejectsBadKey(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	data, _ := json.Marshal(map[string]any{"agent_id": "agent-1", "prompt": "hi"})
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/runs/invoke", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "wrong-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRunStreamDeliversLiveEvents(t *testing.T) {
	release := make(chan struct{})
	p := &scriptedProvider{
		release: release,
		events: []provider.Event{
			{Type: "agent.assistant", Payload: map[string]any{"text": "hello"}},
		},
		result: provider.Result{Text: "hello"},
	}
	env := newTestEnv(t, p)
	seedTestAgent(t, env.store)

	data, _ := json.Marshal(map[string]any{
		"agent_id": "agent-1", "prompt": "hi", "run_id": "run_ws",
	})
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/runs/invoke", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") +
		fmt.Sprintf("/ws/runs/run_ws?apiKey=%s", testAPIKey)
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	// Provider is released only after the subscriber is attached, so
	// its events arrive live.
	close(release)

	// Events emitted before the subscription attached are allowed to be
	// missing; everything after the release must arrive, in seq order.
	var types []string
	lastSeq := 0
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event store.RunEvent
		require.NoError(t, conn.ReadJSON(&event))
		assert.Greater(t, event.Seq, lastSeq)
		lastSeq = event.Seq
		types = append(types, event.Type)
		if event.Type == run.EventRunCompleted {
			break
		}
	}
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, "agent.assistant", types[len(types)-2])
}

func TestRunStreamRejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/runs/run_x"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestSkillEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	resp := env.request(t, http.MethodPost, "/skills", env.token, map[string]any{
		"id": "summarize", "name": "Summarize", "enabled": true, "content": "# Be brief",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/skills/summarize/content", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "# Be brief", body["content"])

	resp = env.request(t, http.MethodPut, "/skills/summarize/content", env.token, map[string]any{
		"content": "# Be very brief",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/skills/summarize/content", env.token, nil)
	body = decodeBody(t, resp)
	assert.Equal(t, "# Be very brief", body["content"])

	resp = env.request(t, http.MethodPut, "/skills/missing/content", env.token, map[string]any{
		"content": "x",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScheduleEndpoints(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	resp := env.request(t, http.MethodPost, "/schedules", env.token, map[string]any{
		"id": "sched-1", "name": "digest", "cron_expr": "0 9 * * *",
		"agent_id": "agent-1", "input_template": map[string]any{"prompt": "digest"},
		"enabled": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/schedules", env.token, map[string]any{
		"id": "sched-2", "name": "bad", "cron_expr": "nope",
		"agent_id": "agent-1", "input_template": map[string]any{"prompt": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/schedules", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	schedules, _ := body["schedules"].([]any)
	assert.Len(t, schedules, 1)
}
