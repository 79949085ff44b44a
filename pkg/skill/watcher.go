package skill

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher keeps skill records in sync with the skills root. Filesystem
// events debounce into a single sync pass; a slow ticker covers events
// fsnotify can miss (network mounts, replaced directories).
type Watcher struct {
	watcher      *fsnotify.Watcher
	syncer       *Syncer
	debounce     time.Duration
	pollInterval time.Duration
	logger       zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// WatcherConfig holds configuration for the skill watcher.
type WatcherConfig struct {
	Syncer       *Syncer
	Debounce     time.Duration
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// NewWatcher creates a skill watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Syncer == nil {
		return nil, fmt.Errorf("syncer is required")
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher:      fsw,
		syncer:       cfg.Syncer,
		debounce:     cfg.Debounce,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger.With().Str("component", "skill_watcher").Logger(),
		done:         make(chan struct{}),
	}, nil
}

// Start runs an initial sync and begins watching the skills root.
func (w *Watcher) Start() error {
	root := w.syncer.files.Root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create skills root: %w", err)
	}
	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch skills root: %w", err)
	}
	if _, _, err := w.syncer.Sync(); err != nil {
		return fmt.Errorf("initial skill sync failed: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", root).Msg("skill watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.scheduleSync()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watcher error")

		case <-ticker.C:
			w.runSync()

		case <-w.done:
			return
		}
	}
}

// scheduleSync debounces bursts of filesystem events into one pass.
func (w *Watcher) scheduleSync() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.runSync()
		}
	})
}

func (w *Watcher) runSync() {
	added, disabled, err := w.syncer.Sync()
	if err != nil {
		w.logger.Error().Err(err).Msg("skill sync failed")
		return
	}
	if added > 0 || disabled > 0 {
		w.logger.Info().Int("added", added).Int("disabled", disabled).Msg("skills synced")
	}
}
