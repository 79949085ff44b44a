package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/neodify/neodify/pkg/store"
)

// inputTemplateSchema constrains the run input a schedule fires with.
const inputTemplateSchema = `{
	"type": "object",
	"required": ["prompt"],
	"properties": {
		"prompt": {"type": "string", "minLength": 1},
		"metadata": {"type": "object"}
	},
	"additionalProperties": false
}`

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service owns schedule records: validation, persistence and next-run
// computation.
type Service struct {
	store  *store.Store
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// NewService creates a schedule service.
func NewService(st *store.Store, logger zerolog.Logger) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(inputTemplateSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile input template schema: %w", err)
	}
	return &Service{
		store:  st,
		schema: schema,
		logger: logger.With().Str("component", "schedule_service").Logger(),
	}, nil
}

// Save validates and persists a schedule. The cron expression must
// parse and the input template must satisfy the template schema.
func (s *Service) Save(sched store.Schedule) (*store.Schedule, error) {
	if sched.ID == "" {
		return nil, fmt.Errorf("schedule id is required")
	}
	if sched.Name == "" {
		return nil, fmt.Errorf("schedule name is required")
	}
	if sched.AgentID == "" {
		return nil, fmt.Errorf("schedule agent id is required")
	}

	spec, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if err := s.validateTemplate(sched.InputTemplate); err != nil {
		return nil, err
	}

	if sched.Enabled {
		next := spec.Next(time.Now()).UnixMilli()
		sched.NextRunAt = &next
	} else {
		sched.NextRunAt = nil
	}

	if err := s.store.UpsertSchedule(sched); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("schedule_id", sched.ID).
		Str("cron", sched.CronExpr).
		Bool("enabled", sched.Enabled).
		Msg("schedule saved")
	return &sched, nil
}

// List returns all schedules.
func (s *Service) List() ([]store.Schedule, error) {
	return s.store.ListSchedules()
}

func (s *Service) validateTemplate(template map[string]any) error {
	if template == nil {
		return fmt.Errorf("input template is required")
	}
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(template))
	if err != nil {
		return fmt.Errorf("failed to validate input template: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid input template: %s", errs[0].String())
		}
		return fmt.Errorf("invalid input template")
	}
	return nil
}
