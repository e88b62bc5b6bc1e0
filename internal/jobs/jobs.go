package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/observability/healthcheck"
)

const (
	MetricsSyncJob          = "metrics-sync"
	TrustlineAggregationJob = "trustline-aggregation"
	CacheInvalidationJob    = "cache-invalidation"
	HealthCheckJob          = "healthcheck"
)

type Service interface {
	SyncAssetMetrics(ctx context.Context, now time.Time) ([]events.Event, error)
	AggregateTrustlines(ctx context.Context, now time.Time) (int, error)
	InvalidateSnapshots(ctx context.Context) (int64, error)
	DoHealthCheck(ctx context.Context) error
}

// New builds the enabled jobs. Alerts raised by a job are sent to output,
// the same channel the ingestion loop feeds the broadcaster with.
func New(
	cfg *config.Config, svc Service, queues healthcheck.QueueChecker, output chan<- events.Event,
) []Job {
	var jobs []Job
	if cfg.Jobs.MetricsSync.Enabled {
		jobs = append(jobs, Job{
			Name:     MetricsSyncJob,
			Interval: seconds(cfg.Jobs.MetricsSync.Interval),
			Run: func(ctx context.Context) error {
				alerts, err := svc.SyncAssetMetrics(ctx, time.Now())
				if err != nil {
					return err
				}
				for _, alert := range alerts {
					select {
					case output <- alert:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			},
		})
	}
	if cfg.Jobs.TrustlineAggregation.Enabled {
		jobs = append(jobs, Job{
			Name:     TrustlineAggregationJob,
			Interval: seconds(cfg.Jobs.TrustlineAggregation.Interval),
			Run: func(ctx context.Context) error {
				assets, err := svc.AggregateTrustlines(ctx, time.Now())
				if err != nil {
					return err
				}
				log.Ctx(ctx).Debug().Int("assets", assets).Msg("aggregated asset holders")
				return nil
			},
		})
	}
	if cfg.Jobs.CacheInvalidation.Enabled {
		jobs = append(jobs, Job{
			Name:     CacheInvalidationJob,
			Interval: seconds(cfg.Jobs.CacheInvalidation.Interval),
			Run: func(ctx context.Context) error {
				removed, err := svc.InvalidateSnapshots(ctx)
				if err != nil {
					return err
				}
				log.Ctx(ctx).Debug().Int64("keys", removed).Msg("invalidated snapshots")
				return nil
			},
		})
	}
	jobs = append(jobs, Job{
		Name:     HealthCheckJob,
		Interval: seconds(cfg.Server.HealthCheckInterval),
		Run: func(ctx context.Context) error {
			return healthcheck.Check(ctx, svc, queues)
		},
	})
	return jobs
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
