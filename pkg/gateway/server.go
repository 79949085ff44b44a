package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/schedule"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

// Server is the HTTP and WebSocket gateway.
type Server struct {
	port      int
	apiKey    string
	auth      *AuthService
	store     *store.Store
	agents    *agent.Service
	runs      *run.Service
	bus       *run.Bus
	skills    *skill.Files
	syncer    *skill.Syncer
	schedules *schedule.Service
	logger    zerolog.Logger

	server   *http.Server
	upgrader websocket.Upgrader
}

// Config holds gateway configuration.
type Config struct {
	Port      int
	APIKey    string
	Auth      *AuthService
	Store     *store.Store
	Agents    *agent.Service
	Runs      *run.Service
	Bus       *run.Bus
	Skills    *skill.Files
	Syncer    *skill.Syncer
	Schedules *schedule.Service
	Logger    zerolog.Logger
}

// NewServer creates the gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("agent service is required")
	}
	if cfg.Runs == nil {
		return nil, fmt.Errorf("run service is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Skills == nil {
		return nil, fmt.Errorf("skill files are required")
	}
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("skill syncer is required")
	}
	if cfg.Schedules == nil {
		return nil, fmt.Errorf("schedule service is required")
	}

	return &Server{
		port:      cfg.Port,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		auth:      cfg.Auth,
		store:     cfg.Store,
		agents:    cfg.Agents,
		runs:      cfg.Runs,
		bus:       cfg.Bus,
		skills:    cfg.Skills,
		syncer:    cfg.Syncer,
		schedules: cfg.Schedules,
		logger:    cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler builds the route table wrapped in the auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/me", s.handleAuthMe)

	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /agents", s.handleSaveAgent)
	mux.HandleFunc("GET /agents/{agentID}", s.handleGetAgent)

	mux.HandleFunc("GET /skills", s.handleListSkills)
	mux.HandleFunc("POST /skills", s.handleSaveSkill)
	mux.HandleFunc("POST /skills/sync", s.handleSyncSkills)
	mux.HandleFunc("GET /skills/{skillID}/content", s.handleGetSkillContent)
	mux.HandleFunc("PUT /skills/{skillID}/content", s.handleUpdateSkillContent)

	mux.HandleFunc("GET /mcps", s.handleListMCPs)
	mux.HandleFunc("POST /mcps", s.handleSaveMCP)

	mux.HandleFunc("GET /schedules", s.handleListSchedules)
	mux.HandleFunc("POST /schedules", s.handleSaveSchedule)

	mux.HandleFunc("POST /runs/invoke", s.handleInvokeRun)
	mux.HandleFunc("GET /runs/{runID}", s.handleGetRun)
	mux.HandleFunc("GET /ws/runs/{runID}", s.handleRunStream)

	return s.authMiddleware(mux)
}

// Start begins serving. It returns once the listener goroutine is up.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Int("port", s.port).Msg("starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("gateway server error")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("gateway server stopped")
	return nil
}

// authMiddleware enforces the access model: health, metrics and login
// are public; run routes accept the service api key or a bearer token;
// everything else requires a bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/healthz" || path == "/metrics" || path == "/auth/login" {
			next.ServeHTTP(w, r)
			return
		}

		token := s.auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		var principal *AuthPrincipal
		if token != "" {
			principal = s.auth.VerifyToken(token)
		}

		if strings.HasPrefix(path, "/runs/") || strings.HasPrefix(path, "/ws/runs/") {
			if s.verifyServiceKey(r) {
				next.ServeHTTP(w, r)
				return
			}
			if principal != nil {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
				return
			}
			if s.apiKey == "" {
				writeError(w, http.StatusInternalServerError, "service api key is not configured")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid service api key")
			return
		}

		if principal == nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (s *Server) verifyServiceKey(r *http.Request) bool {
	if s.apiKey == "" {
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if provided == "" {
		provided = strings.TrimSpace(r.URL.Query().Get("apiKey"))
	}
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.apiKey)) == 1
}
