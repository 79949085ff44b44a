package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neodify/neodify/internal/config"
	"github.com/neodify/neodify/internal/daemon"
	"github.com/neodify/neodify/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		lg, err := logger.New(logger.Config{
			Level:   cfg.Logging.Level,
			File:    cfg.Logging.File,
			Console: true,
			Pretty:  cfg.Logging.Pretty,
		})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer lg.Close()

		d, err := daemon.New(cfg, lg.Zerolog())
		if err != nil {
			return err
		}
		if err := d.Start(); err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		return d.Stop()
	},
}
