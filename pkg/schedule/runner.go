package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/run"
	"github.com/neodify/neodify/pkg/store"
)

// Runner fires enabled schedules through the run pipeline with source
// "cron". It is rebuilt from the store on start; live schedule edits
// take effect on the next restart.
type Runner struct {
	store  *store.Store
	runs   *run.Service
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRunner creates a schedule runner.
func NewRunner(st *store.Store, runs *run.Service, logger zerolog.Logger) *Runner {
	return &Runner{
		store:  st,
		runs:   runs,
		cron:   cron.New(cron.WithParser(cronParser)),
		logger: logger.With().Str("component", "schedule_runner").Logger(),
	}
}

// Start registers all enabled schedules and starts the cron loop.
func (r *Runner) Start() error {
	schedules, err := r.store.ListSchedules()
	if err != nil {
		return err
	}

	registered := 0
	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		sched := sched
		if _, err := r.cron.AddFunc(sched.CronExpr, func() {
			r.fire(sched)
		}); err != nil {
			r.logger.Error().Err(err).
				Str("schedule_id", sched.ID).
				Str("cron", sched.CronExpr).
				Msg("failed to register schedule")
			continue
		}
		registered++
	}

	r.cron.Start()
	r.logger.Info().Int("schedules", registered).Msg("schedule runner started")
	return nil
}

// Stop stops the cron loop and waits for in-flight fires to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) fire(sched store.Schedule) {
	prompt, _ := sched.InputTemplate["prompt"].(string)
	if prompt == "" {
		r.logger.Error().Str("schedule_id", sched.ID).Msg("schedule template has no prompt, skipping fire")
		return
	}
	observability.RecordScheduleFire(sched.ID)
	metadata, _ := sched.InputTemplate["metadata"].(map[string]any)

	receipt, err := r.runs.Execute(context.Background(), run.Input{
		Source:   "cron",
		AgentID:  sched.AgentID,
		Prompt:   prompt,
		Metadata: metadata,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("schedule fire failed")
	} else {
		r.logger.Info().
			Str("schedule_id", sched.ID).
			Str("run_id", receipt.RunID).
			Msg("schedule fired")
	}

	now := time.Now()
	lastRun := now.UnixMilli()
	var nextRun *int64
	if spec, perr := cronParser.Parse(sched.CronExpr); perr == nil {
		next := spec.Next(now).UnixMilli()
		nextRun = &next
	}
	if err := r.store.UpdateScheduleRunTimes(sched.ID, &lastRun, nextRun); err != nil {
		r.logger.Error().Err(err).Str("schedule_id", sched.ID).Msg("failed to update schedule run times")
	}
}
