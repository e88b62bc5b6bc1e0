package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals. A tick that fires while the
// previous run of the same job is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
}

func NewScheduler() *Scheduler {
	logger := cronLogger{logger: log.Logger.With().Str("component", "scheduler").Logger()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

func (s *Scheduler) Add(jobs ...Job) {
	s.jobs = append(s.jobs, jobs...)
}

// Run starts every job and blocks until ctx is cancelled. It returns once
// in-flight runs have observed the cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		job := job
		spec := fmt.Sprintf("@every %s", job.Interval)
		if _, err := s.cron.AddFunc(spec, func() { runJob(ctx, job) }); err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
		}
		log.Ctx(ctx).Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("scheduled job")
	}

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	logger := log.Ctx(ctx).With().Str("job", job.Name).Logger()
	observe := metrics.StartJobDurationTimer(job.Name)
	err := job.Run(logger.WithContext(ctx))
	observe(err)
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("job failed")
		return
	}
	logger.Debug().Msg("job finished")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
