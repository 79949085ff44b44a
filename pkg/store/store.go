package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed configuration and run history store. It is
// the single source of truth for runs and their event logs; the live
// event bus is only a non-durable overlay on top of it.
type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		model TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		temperature REAL NOT NULL,
		max_tokens INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root_path TEXT NOT NULL,
		skill_md_path TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS mcps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mode TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		endpoint TEXT,
		command TEXT,
		args_json TEXT NOT NULL,
		env_json TEXT NOT NULL,
		headers_json TEXT NOT NULL,
		auth_config_json TEXT NOT NULL,
		timeout_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS agent_skills (
		agent_id TEXT NOT NULL,
		skill_id TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		PRIMARY KEY (agent_id, skill_id)
	);`,
	`CREATE TABLE IF NOT EXISTS agent_mcps (
		agent_id TEXT NOT NULL,
		mcp_id TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		PRIMARY KEY (agent_id, mcp_id)
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		cwd TEXT NOT NULL,
		session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		conversation_id TEXT,
		turn_index INTEGER NOT NULL,
		session_id TEXT,
		status TEXT NOT NULL,
		input_json TEXT NOT NULL,
		output_json TEXT,
		error_msg TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		latency_ms INTEGER,
		cost_json TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (run_id, seq)
	);`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		input_template_json TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		next_run_at INTEGER,
		last_run_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_run_events_run_id_seq ON run_events (run_id, seq);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_conversation_id ON runs (conversation_id);`,
}

// Open opens (or creates) the store at the given path. Use ":memory:"
// for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes serialized and keeps :memory:
	// databases from silently sharding per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	for _, ddl := range schema {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
