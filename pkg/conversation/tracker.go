package conversation

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// EnsureParams identifies or describes the conversation a run joins.
// A zero ConversationID creates a fresh conversation.
type EnsureParams struct {
	ConversationID string
	AgentID        string
	Title          string
}

// Tracker owns conversation lifecycle: creation, turn accounting and
// session resume keys.
type Tracker struct {
	store   *store.Store
	dataDir string
	logger  zerolog.Logger
}

// NewTracker creates a conversation tracker. Conversation working
// directories are allocated under dataDir.
func NewTracker(st *store.Store, dataDir string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   st,
		dataDir: dataDir,
		logger:  logger.With().Str("component", "conversation_tracker").Logger(),
	}
}

// Ensure returns the conversation a run should join, creating it when
// it does not exist yet. Passing an existing id is idempotent; passing
// a new id adopts it; passing none generates one.
func (t *Tracker) Ensure(params EnsureParams) (*store.Conversation, error) {
	if params.ConversationID != "" {
		existing, err := t.store.GetConversation(params.ConversationID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	id := params.ConversationID
	if id == "" {
		id = fmt.Sprintf("conv_%s", uuid.NewString())
	}
	now := time.Now().UnixMilli()
	title := params.Title
	if title == "" {
		title = fmt.Sprintf("Conversation %s", time.Now().Format("2006-01-02 15:04"))
	}
	conv := store.Conversation{
		ID:        id,
		AgentID:   params.AgentID,
		Title:     title,
		Cwd:       filepath.Join(t.dataDir, "conversations", id),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.UpsertConversation(conv); err != nil {
		return nil, err
	}
	t.logger.Debug().Str("conversation_id", id).Str("agent_id", params.AgentID).Msg("conversation created")
	return &conv, nil
}

// NextTurnIndex returns the 1-based index the next run in the
// conversation should carry.
func (t *Tracker) NextTurnIndex(conversationID string) (int, error) {
	return t.store.NextTurnIndex(conversationID)
}

// UpdateSessionID records the provider resume key on the conversation.
func (t *Tracker) UpdateSessionID(conversationID, sessionID string) error {
	return t.store.UpdateConversationSessionID(conversationID, &sessionID)
}

// Get returns one conversation, or nil when absent.
func (t *Tracker) Get(conversationID string) (*store.Conversation, error) {
	return t.store.GetConversation(conversationID)
}
