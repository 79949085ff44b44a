package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// SkillFileName is the instruction file every skill directory carries.
const SkillFileName = "SKILL.md"

// Files materializes skill content on disk under <dataDir>/skills/<id>/.
// Skill ids are used as directory names, so ids that would escape the
// root are rejected.
type Files struct {
	root   string
	logger zerolog.Logger
}

// NewFiles creates a skill file materializer rooted at dataDir.
func NewFiles(dataDir string, logger zerolog.Logger) *Files {
	return &Files{
		root:   filepath.Join(dataDir, "skills"),
		logger: logger.With().Str("component", "skill_files").Logger(),
	}
}

// Root returns the skills root directory.
func (f *Files) Root() string {
	return f.root
}

// Dir returns the directory for one skill id, validating that the id
// cannot escape the skills root.
func (f *Files) Dir(skillID string) (string, error) {
	if skillID == "" {
		return "", fmt.Errorf("skill id is required")
	}
	if strings.ContainsAny(skillID, `/\`) || skillID == "." || skillID == ".." {
		return "", fmt.Errorf("invalid skill id %q", skillID)
	}
	dir := filepath.Join(f.root, skillID)
	if filepath.Dir(dir) != filepath.Clean(f.root) {
		return "", fmt.Errorf("invalid skill id %q", skillID)
	}
	return dir, nil
}

// Write materializes skill content, creating the directory when needed.
// It returns the path of the written SKILL.md.
func (f *Files) Write(skillID, content string) (string, error) {
	dir, err := f.Dir(skillID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create skill directory: %w", err)
	}
	path := filepath.Join(dir, SkillFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write skill content: %w", err)
	}
	return path, nil
}

// Read returns the materialized content of one skill.
func (f *Files) Read(skillID string) (string, error) {
	dir, err := f.Dir(skillID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, SkillFileName))
	if err != nil {
		return "", fmt.Errorf("failed to read skill content: %w", err)
	}
	return string(data), nil
}

// Exists reports whether a skill directory with a SKILL.md exists.
func (f *Files) Exists(skillID string) bool {
	dir, err := f.Dir(skillID)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, SkillFileName))
	return err == nil && !info.IsDir()
}

// ListIDs returns the ids of all locally materialized skills, sorted.
// A directory without a SKILL.md does not count.
func (f *Files) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read skills root: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.root, entry.Name(), SkillFileName)); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
