package skill

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// Syncer reconciles the skills root on disk with skill records in the
// store. Disk is the source of truth: new directories become enabled
// records, records whose directory vanished are disabled.
type Syncer struct {
	store  *store.Store
	files  *Files
	logger zerolog.Logger
}

// NewSyncer creates a skill syncer.
func NewSyncer(st *store.Store, files *Files, logger zerolog.Logger) *Syncer {
	return &Syncer{
		store:  st,
		files:  files,
		logger: logger.With().Str("component", "skill_sync").Logger(),
	}
}

// Sync performs one reconciliation pass and reports how many records
// were added and disabled.
func (s *Syncer) Sync() (added, disabled int, err error) {
	localIDs, err := s.files.ListIDs()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list local skills: %w", err)
	}
	local := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		local[id] = struct{}{}
	}

	records, err := s.store.ListSkills()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list skill records: %w", err)
	}
	known := make(map[string]store.Skill, len(records))
	for _, sk := range records {
		known[sk.ID] = sk
	}

	now := time.Now().UnixMilli()
	for _, id := range localIDs {
		if _, ok := known[id]; ok {
			continue
		}
		dir, err := s.files.Dir(id)
		if err != nil {
			return added, disabled, err
		}
		sk := store.Skill{
			ID:          id,
			Name:        id,
			RootPath:    dir,
			SkillMDPath: filepath.Join(dir, SkillFileName),
			Enabled:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.UpsertSkill(sk); err != nil {
			return added, disabled, err
		}
		added++
		s.logger.Info().Str("skill_id", id).Msg("skill discovered")
	}

	for _, sk := range records {
		if _, ok := local[sk.ID]; ok {
			continue
		}
		if !sk.Enabled {
			continue
		}
		sk.Enabled = false
		sk.UpdatedAt = now
		if err := s.store.UpsertSkill(sk); err != nil {
			return added, disabled, err
		}
		disabled++
		s.logger.Warn().Str("skill_id", sk.ID).Msg("skill directory missing, record disabled")
	}

	return added, disabled, nil
}
