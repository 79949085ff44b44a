package gateway

import (
	"net/http"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/store"
)

// handleRunStream upgrades to WebSocket and forwards live run events.
// The stream is live-only: events appended before the subscription are
// served by GET /runs/{runID}, not replayed here.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	observability.AddLiveSubscribers(1)
	s.logger.Info().
		Str("client_id", clientID).
		Str("run_id", runID).
		Msg("stream subscriber connected")

	// Writes come from bus fan-out and the close path; gorilla allows
	// one concurrent writer, so serialize them.
	var writeMu sync.Mutex

	unsubscribe := s.bus.Subscribe(runID, func(event store.RunEvent) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Debug().Err(err).Str("client_id", clientID).Msg("stream write failed")
		}
	})

	go func() {
		defer func() {
			unsubscribe()
			conn.Close()
			observability.AddLiveSubscribers(-1)
			s.logger.Info().Str("client_id", clientID).Str("run_id", runID).Msg("stream subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
