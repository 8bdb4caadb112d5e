package server

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type scheduledJob struct {
	Job
	spec string
	expr *cronexpr.Expression
	next time.Time
}

// Scheduler runs cron-scheduled jobs. Each scheduled slot is claimed with a
// Redis lock so only one instance runs it.
type Scheduler struct {
	cfg    config.SchedulerConfig
	locker locker
	log    *logger.Logger
	jobs   []*scheduledJob
	now    func() time.Time
}

// NewScheduler binds jobs to their cron specs. Jobs without a spec are disabled.
func NewScheduler(cfg config.SchedulerConfig, lk locker, log *logger.Logger, jobs ...Job) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg = cfg.Normalize()
	s := &Scheduler{cfg: cfg, locker: lk, log: log.Named("scheduler"), now: time.Now}
	known := map[string]bool{}
	for _, j := range jobs {
		known[j.Name] = true
		spec, ok := cfg.Jobs[j.Name]
		if !ok {
			s.log.Info("job disabled", "job", j.Name)
			continue
		}
		expr, err := cronexpr.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
		s.jobs = append(s.jobs, &scheduledJob{Job: j, spec: spec, expr: expr, next: expr.Next(s.now())})
	}
	for name := range cfg.Jobs {
		if !known[name] {
			s.log.Warn("no job registered for schedule", "job", name)
		}
	}
	sort.Slice(s.jobs, func(i, j int) bool { return s.jobs[i].Name < s.jobs[j].Name })
	return s, nil
}

// Jobs lists the enabled job names.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Name)
	}
	return out
}

// Start ticks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled || len(s.jobs) == 0 {
		s.log.Info("scheduler not started", "enabled", s.cfg.Enabled, "jobs", len(s.jobs))
		return
	}
	ticker := time.NewTicker(s.cfg.Tick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
	s.log.Info("scheduler started", "tick", s.cfg.Tick.String(), "jobs", s.Jobs())
}

// Tick runs every job whose next fire time has passed.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		slot := j.next
		j.next = j.expr.Next(now)
		if !s.claim(ctx, j.Name, slot) {
			continue
		}
		_ = s.run(ctx, j.Job)
	}
}

// RunNow runs one job immediately without taking the slot lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.run(ctx, j.Job)
		}
	}
	return fmt.Errorf("unknown or disabled job %q", name)
}

func (s *Scheduler) claim(ctx context.Context, job string, slot time.Time) bool {
	if s.locker == nil {
		return true
	}
	key := "sched:lock:" + job + ":" + strconv.FormatInt(slot.Unix(), 10)
	ok, err := s.locker.SetNX(ctx, key, "1", s.cfg.LockTTL).Result()
	if err != nil {
		s.log.Warn("scheduler lock failed", "job", job, "error", err)
		return false
	}
	return ok
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	start := time.Now()
	err := j.Run(ctx)
	metrics.SchedulerRuns.WithLabelValues(j.Name, metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Error("job failed", "job", j.Name, "duration", time.Since(start).String(), "error", err)
		return err
	}
	s.log.Debug("job finished", "job", j.Name, "duration", time.Since(start).String())
	return nil
}
