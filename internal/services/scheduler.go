package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/repository"
)

// Scheduler manages cron-based workflow triggering. It wraps
// robfig/cron and fires the published version of each schedule's
// definition family through the execution service.
type Scheduler struct {
	cron     *cron.Cron
	scheds   repository.ScheduleRepository
	exec     *ExecutionService
	entryMap map[string]cron.EntryID // schedule ID -> cron entry
	mu       sync.Mutex
}

func NewScheduler(scheds repository.ScheduleRepository, exec *ExecutionService) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		scheds:   scheds,
		exec:     exec,
		entryMap: make(map[string]cron.EntryID),
	}
}

// Start loads existing schedules from the repository and begins the
// cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.scheds.List(ctx)
	if err != nil {
		slog.Warn("scheduler: failed to load schedules", "err", err)
	} else {
		for _, sched := range schedules {
			if sched.Disabled {
				continue
			}
			if err := s.registerCronJob(sched); err != nil {
				slog.Warn("scheduler: failed to register schedule", "id", sched.ID, "err", err)
			}
		}
		slog.Info("scheduler: loaded schedules", "count", len(schedules))
	}

	s.cron.Start()
	slog.Info("scheduler: started")
	return nil
}

// Stop gracefully stops the cron loop, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler: stopped")
}

// Add creates a new schedule and registers its cron job.
func (s *Scheduler) Add(ctx context.Context, sched *conveyor.Schedule) error {
	cronSched, err := parseCronExpr(sched.CronExpr, sched.Timezone)
	if err != nil {
		return err
	}

	now := time.Now()
	if sched.ID == "" {
		sched.ID = conveyor.ShortID("sched")
	}
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}
	sched.NextRunAt = cronSched.Next(now)
	sched.CreatedAt = now
	sched.UpdatedAt = now

	if err := s.scheds.Save(ctx, sched); err != nil {
		return err
	}

	if sched.Disabled {
		return nil
	}
	return s.registerCronJob(sched)
}

// Remove deletes a schedule and unregisters its cron job.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.unregister(id)
	return s.scheds.Delete(ctx, id)
}

// Pause disables a schedule without deleting it.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	sched, err := s.scheds.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.unregister(id)

	sched.Disabled = true
	sched.UpdatedAt = time.Now()
	return s.scheds.Save(ctx, sched)
}

// Resume re-enables a paused schedule.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	sched, err := s.scheds.GetByID(ctx, id)
	if err != nil {
		return err
	}

	sched.Disabled = false
	sched.UpdatedAt = time.Now()
	if err := s.scheds.Save(ctx, sched); err != nil {
		return err
	}
	return s.registerCronJob(sched)
}

// Get retrieves a schedule by id.
func (s *Scheduler) Get(ctx context.Context, id string) (*conveyor.Schedule, error) {
	return s.scheds.GetByID(ctx, id)
}

// List returns all schedules.
func (s *Scheduler) List(ctx context.Context) ([]*conveyor.Schedule, error) {
	return s.scheds.List(ctx)
}

// TriggerNow fires a schedule immediately, bypassing the cron timer.
// It runs the same path as a cron-triggered fire, including the
// LastRunAt / NextRunAt bookkeeping.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) error {
	if _, err := s.scheds.GetByID(ctx, id); err != nil {
		return err
	}
	s.fire(id)
	return nil
}

// fire is called when a cron entry triggers. It reloads the schedule
// by id, so a pause or edit that raced the trigger is honored and the
// bookkeeping save below cannot resurrect a stale copy, then starts
// the published version of the schedule's definition family.
func (s *Scheduler) fire(scheduleID string) {
	ctx := context.Background()

	sched, err := s.scheds.GetByID(ctx, scheduleID)
	if err != nil {
		slog.Warn("scheduler: schedule vanished before fire", "schedule", scheduleID, "err", err)
		return
	}
	if sched.Disabled {
		slog.Info("scheduler: skipping disabled schedule", "schedule", sched.ID)
		return
	}

	slog.Info("scheduler: executing scheduled run",
		"schedule", sched.ID, "definition", sched.DefinitionID)

	inst, startErr := s.exec.Start(ctx, sched.DefinitionID, conveyor.Published(), sched.Input)
	if startErr != nil {
		slog.Error("scheduler: run failed",
			"schedule", sched.ID, "definition", sched.DefinitionID, "err", startErr)
	} else {
		slog.Info("scheduler: run finished",
			"schedule", sched.ID, "instance", inst.ID, "status", inst.Status)
	}

	now := time.Now()
	sched.LastRunAt = &now
	if cronSched, parseErr := parseCronExpr(sched.CronExpr, sched.Timezone); parseErr == nil {
		sched.NextRunAt = cronSched.Next(now)
	}
	sched.UpdatedAt = now
	if updateErr := s.scheds.Save(ctx, sched); updateErr != nil {
		slog.Warn("scheduler: failed to update schedule after run", "err", updateErr)
	}
}

// registerCronJob parses the schedule's cron expression, registers a
// cron entry, and records the EntryID for later removal.
func (s *Scheduler) registerCronJob(sched *conveyor.Schedule) error {
	cronSched, err := parseCronExpr(sched.CronExpr, sched.Timezone)
	if err != nil {
		return err
	}

	scheduleID := sched.ID
	entryID := s.cron.Schedule(cronSched, cron.FuncJob(func() {
		s.fire(scheduleID)
	}))

	s.mu.Lock()
	s.entryMap[sched.ID] = entryID
	s.mu.Unlock()

	slog.Info("scheduler: registered cron job",
		"id", sched.ID, "definition", sched.DefinitionID, "cron", sched.CronExpr)
	return nil
}

func (s *Scheduler) unregister(id string) {
	s.mu.Lock()
	if entryID, ok := s.entryMap[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entryMap, id)
	}
	s.mu.Unlock()
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard)
// parsing. A non-UTC timezone is applied via the CRON_TZ= prefix.
func parseCronExpr(expr string, timezone string) (cron.Schedule, error) {
	if timezone != "" && timezone != "UTC" {
		expr = "CRON_TZ=" + timezone + " " + expr
	}
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}
