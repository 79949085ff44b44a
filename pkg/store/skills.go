package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertSkill inserts or updates a skill record.
func (s *Store) UpsertSkill(skill Skill) error {
	_, err := s.db.Exec(
		`INSERT INTO skills (id, name, root_path, skill_md_path, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			root_path = excluded.root_path,
			skill_md_path = excluded.skill_md_path,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		skill.ID, skill.Name, skill.RootPath, skill.SkillMDPath,
		boolToInt(skill.Enabled), skill.CreatedAt, skill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert skill: %w", err)
	}
	return nil
}

// GetSkill returns the skill with the given id, or nil when absent.
func (s *Store) GetSkill(skillID string) (*Skill, error) {
	row := s.db.QueryRow(
		`SELECT id, name, root_path, skill_md_path, enabled, created_at, updated_at
		 FROM skills WHERE id = ?`, skillID)
	skill, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill: %w", err)
	}
	return skill, nil
}

// ListSkills returns all skills ordered by name.
func (s *Store) ListSkills() ([]Skill, error) {
	return s.listSkills(`SELECT id, name, root_path, skill_md_path, enabled, created_at, updated_at
		FROM skills ORDER BY name ASC`)
}

// ListEnabledSkills returns enabled skills ordered by name.
func (s *Store) ListEnabledSkills() ([]Skill, error) {
	return s.listSkills(`SELECT id, name, root_path, skill_md_path, enabled, created_at, updated_at
		FROM skills WHERE enabled = 1 ORDER BY name ASC`)
}

func (s *Store) listSkills(query string) ([]Skill, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, *skill)
	}
	return skills, rows.Err()
}

func scanSkill(row rowScanner) (*Skill, error) {
	var skill Skill
	var enabled int
	if err := row.Scan(&skill.ID, &skill.Name, &skill.RootPath, &skill.SkillMDPath,
		&enabled, &skill.CreatedAt, &skill.UpdatedAt); err != nil {
		return nil, err
	}
	skill.Enabled = enabled == 1
	return &skill, nil
}
