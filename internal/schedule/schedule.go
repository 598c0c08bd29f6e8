package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on their cron specs.
type Scheduler struct {
	loc  *time.Location
	jobs []Job
}

// New creates a Scheduler evaluating specs in loc (UTC if nil).
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{loc: loc}
}

// Add registers a job. The cron expression is validated immediately.
func (s *Scheduler) Add(name, spec string, run func(ctx context.Context) error) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule %s: invalid spec %q: %w", name, spec, err)
	}
	s.jobs = append(s.jobs, Job{Name: name, Spec: spec, Run: run})
	return nil
}

// Next returns the next activation of each job after now, keyed by name.
func (s *Scheduler) Next(now time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		sched, err := cron.ParseStandard(j.Spec)
		if err != nil {
			continue
		}
		out[j.Name] = sched.Next(now.In(s.loc))
	}
	return out
}

// Run starts the jobs and blocks until ctx is done, then waits for running
// jobs to finish. Job failures are logged, not returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, j := range s.jobs {
		job := j
		if _, err := c.AddFunc(job.Spec, func() { s.runJob(ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		logger.Info("Job scheduled", logger.Fields{"job": job.Name, "spec": job.Spec})
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := job.Run(ctx)
	logger.RecordTiming("schedule."+job.Name, time.Since(start))
	if err != nil {
		logger.IncrCounter("schedule.failures")
		logger.Error("Scheduled job failed", logger.Fields{"job": job.Name}, err)
		return
	}
	logger.Info("Scheduled job finished", logger.Fields{
		"job":         job.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// cronLogger routes cron's own messages to the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, fields(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, fields(keysAndValues), err)
}

func fields(kv []interface{}) logger.Fields {
	if len(kv) == 0 {
		return nil
	}
	f := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
