package skill

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// Runtime stages skills into a run's working directory so the agent
// can read them during execution. Staging reconciles by diff: stale
// skill directories are removed, current ones copied fresh.
type Runtime struct {
	files  *Files
	logger zerolog.Logger
}

// NewRuntime creates a skill runtime over the given materializer.
func NewRuntime(files *Files, logger zerolog.Logger) *Runtime {
	return &Runtime{
		files:  files,
		logger: logger.With().Str("component", "skill_runtime").Logger(),
	}
}

// Prepare stages the given skills under <cwd>/.claude/skills and
// returns cwd. The working directory is created when absent.
func (r *Runtime) Prepare(cwd string, skills []store.Skill) (string, error) {
	if cwd == "" {
		return "", fmt.Errorf("working directory is required")
	}
	target := filepath.Join(cwd, ".claude", "skills")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("failed to create skill staging directory: %w", err)
	}

	desired := make(map[string]store.Skill, len(skills))
	for _, sk := range skills {
		desired[sk.ID] = sk
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", fmt.Errorf("failed to read skill staging directory: %w", err)
	}
	for _, entry := range entries {
		if _, keep := desired[entry.Name()]; keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(target, entry.Name())); err != nil {
			return "", fmt.Errorf("failed to remove stale skill %s: %w", entry.Name(), err)
		}
		r.logger.Debug().Str("skill_id", entry.Name()).Msg("removed stale staged skill")
	}

	for _, sk := range skills {
		src := sk.RootPath
		if src == "" {
			dir, err := r.files.Dir(sk.ID)
			if err != nil {
				return "", err
			}
			src = dir
		}
		dst := filepath.Join(target, sk.ID)
		if err := os.RemoveAll(dst); err != nil {
			return "", fmt.Errorf("failed to refresh staged skill %s: %w", sk.ID, err)
		}
		if err := copyDir(src, dst); err != nil {
			return "", fmt.Errorf("failed to stage skill %s: %w", sk.ID, err)
		}
	}

	r.logger.Debug().Str("cwd", cwd).Int("skills", len(skills)).Msg("skill runtime prepared")
	return cwd, nil
}

// Instructions renders the skills' content as a system prompt block.
// Chat completion APIs cannot read the staged files from the working
// directory, so the content travels with the request instead. Skills
// without a readable SKILL.md are skipped.
func Instructions(skills []store.Skill) string {
	var b strings.Builder
	for _, sk := range skills {
		if sk.SkillMDPath == "" {
			continue
		}
		data, err := os.ReadFile(sk.SkillMDPath)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("You have the following skills. Apply them when they fit the task.\n")
		}
		fmt.Fprintf(&b, "\n<skill name=%q>\n%s\n</skill>\n", sk.Name, content)
	}
	return b.String()
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		return copyFile(path, out)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
