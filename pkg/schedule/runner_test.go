package schedule

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/conversation"
	"github.com/neodify/neodify/pkg/provider"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Run(_ context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{Text: "done"}, nil
}

type stubSelector struct{}

func (stubSelector) ForModel(string) (provider.Provider, error) { return stubProvider{}, nil }

func newRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	dataDir := t.TempDir()
	files := skill.NewFiles(dataDir, logger)
	runs, err := run.NewService(run.Config{
		Store:         st,
		Resolver:      agent.NewResolver(st, logger),
		Conversations: conversation.NewTracker(st, dataDir, logger),
		Runtime:       skill.NewRuntime(files, logger),
		Providers:     stubSelector{},
		Bus:           run.NewBus(logger),
		Guard:         run.NewGuard(),
		Logger:        logger,
	})
	require.NoError(t, err)
	return NewRunner(st, runs, logger), st
}

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(observability.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestFireSkipsTemplateWithoutPrompt(t *testing.T) {
	runner, st := newRunner(t)

	sched := store.Schedule{
		ID:            "sched-no-prompt",
		Name:          "broken",
		CronExpr:      "* * * * *",
		AgentID:       "agent-1",
		InputTemplate: map[string]any{"metadata": map[string]any{}},
		Enabled:       true,
	}
	require.NoError(t, st.UpsertSchedule(sched))

	runner.fire(sched)

	// Nothing fired: run times untouched and no fire counted.
	stored, err := st.GetSchedule("sched-no-prompt")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.LastRunAt)
	assert.NotContains(t, scrapeMetrics(t), `schedule_id="sched-no-prompt"`)
}

func TestFireExecutesRun(t *testing.T) {
	runner, st := newRunner(t)

	now := time.Now().UnixMilli()
	require.NoError(t, st.UpsertAgent(store.Agent{
		ID:        "agent-1",
		Name:      "Digest Agent",
		Enabled:   true,
		Model:     "claude-sonnet-4",
		MaxTokens: 1024,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	sched := store.Schedule{
		ID:            "sched-digest",
		Name:          "daily digest",
		CronExpr:      "0 9 * * *",
		AgentID:       "agent-1",
		InputTemplate: map[string]any{"prompt": "write the digest"},
		Enabled:       true,
	}
	require.NoError(t, st.UpsertSchedule(sched))

	runner.fire(sched)

	stored, err := st.GetSchedule("sched-digest")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastRunAt)
	require.NotNil(t, stored.NextRunAt)
	assert.Greater(t, *stored.NextRunAt, *stored.LastRunAt)
	assert.Contains(t, scrapeMetrics(t), `schedule_id="sched-digest"`)
}
