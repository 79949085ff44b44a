package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/store"
)

// actorFrom names the caller for audit entries. Service-key callers
// carry no principal.
func actorFrom(r *http.Request) string {
	if p := principalFrom(r.Context()); p != nil {
		return p.Username
	}
	return "api-key"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if session == nil {
		observability.RecordAuthAudit("login", req.Username, "failure", nil)
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	observability.RecordAuthAudit("login", req.Username, "success", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"username":   req.Username,
	})
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"user": map[string]any{
			"username":   p.Username,
			"expires_at": p.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	agents, err := s.agents.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list agents")
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentID")
	ag, err := s.agents.Get(agentID)
	if err != nil {
		s.logger.Error().Err(err).Str("agent_id", agentID).Msg("failed to get agent")
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}
	if ag == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	skills, err := s.store.ListSkillBindings(agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load skill bindings")
		return
	}
	mcps, err := s.store.ListMCPBindings(agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load mcp bindings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"agent":  ag,
		"skills": skills,
		"mcps":   mcps,
	})
}

func (s *Server) handleSaveAgent(w http.ResponseWriter, r *http.Request) {
	var req agent.SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.agents.Save(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListSkills(w http.ResponseWriter, _ *http.Request) {
	skills, err := s.store.ListEnabledSkills()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list skills")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "skills": skills})
}

type saveSkillRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Content string `json:"content"`
}

func (s *Server) handleSaveSkill(w http.ResponseWriter, r *http.Request) {
	var req saveSkillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "skill id and name are required")
		return
	}

	mdPath, err := s.skills.Write(req.ID, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir, err := s.skills.Dir(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UnixMilli()
	sk := store.Skill{
		ID:          req.ID,
		Name:        req.Name,
		RootPath:    dir,
		SkillMDPath: mdPath,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := s.store.GetSkill(req.ID); err == nil && existing != nil {
		sk.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertSkill(sk); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save skill")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSyncSkills(w http.ResponseWriter, _ *http.Request) {
	added, disabled, err := s.syncer.Sync()
	if err != nil {
		s.logger.Error().Err(err).Msg("skill sync failed")
		writeError(w, http.StatusInternalServerError, "skill sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "added": added, "disabled": disabled})
}

func (s *Server) handleGetSkillContent(w http.ResponseWriter, r *http.Request) {
	skillID := r.PathValue("skillID")
	content, err := s.skills.Read(skillID)
	if err != nil {
		writeError(w, http.StatusNotFound, "skill content not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "content": content})
}

type updateSkillContentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleUpdateSkillContent(w http.ResponseWriter, r *http.Request) {
	skillID := r.PathValue("skillID")
	existing, err := s.store.GetSkill(skillID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load skill")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}

	var req updateSkillContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.skills.Write(skillID, req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListMCPs(w http.ResponseWriter, _ *http.Request) {
	mcps, err := s.store.ListEnabledMCPs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list mcps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mcps": mcps})
}

func (s *Server) handleSaveMCP(w http.ResponseWriter, r *http.Request) {
	var mcp store.MCP
	if err := decodeJSON(r, &mcp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if mcp.ID == "" || mcp.Name == "" {
		writeError(w, http.StatusBadRequest, "mcp id and name are required")
		return
	}
	switch mcp.Mode {
	case store.MCPModeHTTP, store.MCPModeSSE, store.MCPModeUvx, store.MCPModeNpx:
	default:
		writeError(w, http.StatusBadRequest, "invalid mcp mode")
		return
	}

	now := time.Now().UnixMilli()
	if existing, err := s.store.GetMCP(mcp.ID); err == nil && existing != nil {
		mcp.CreatedAt = existing.CreatedAt
	} else {
		mcp.CreatedAt = now
	}
	mcp.UpdatedAt = now
	if err := s.store.UpsertMCP(mcp); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save mcp")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	schedules, err := s.schedules.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "schedules": schedules})
}

func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	var sched store.Schedule
	if err := decodeJSON(r, &sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.schedules.Save(sched); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type invokeRunRequest struct {
	AgentID           string         `json:"agent_id"`
	ConversationID    string         `json:"conversation_id"`
	ConversationTitle string         `json:"conversation_title"`
	Prompt            string         `json:"prompt"`
	Metadata          map[string]any `json:"metadata"`
	RunID             string         `json:"run_id"`
}

func (s *Server) handleInvokeRun(w http.ResponseWriter, r *http.Request) {
	var req invokeRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := s.runs.Execute(r.Context(), run.Input{
		Source:         "api",
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		Title:          req.ConversationTitle,
		Prompt:         req.Prompt,
		Metadata:       req.Metadata,
		RunID:          req.RunID,
	})
	if errors.Is(err, run.ErrRunInFlight) {
		observability.RecordRunAudit(req.RunID, actorFrom(r), "api", "rejected")
		writeError(w, http.StatusConflict, "run is already in flight")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observability.RecordRunAudit(receipt.RunID, actorFrom(r), "api", "accepted")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"run_id":          receipt.RunID,
		"conversation_id": receipt.ConversationID,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	rec, err := s.store.GetRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	events, err := s.store.ListEventsByRun(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": rec, "events": events})
}
