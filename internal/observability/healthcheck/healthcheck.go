package healthcheck

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logger zerolog.Logger = log.Logger

func SetLogger(customLogger zerolog.Logger) {
	logger = customLogger
}

type StoreChecker interface {
	DoHealthCheck(ctx context.Context) error
}

type QueueChecker interface {
	IsConnectionHealthy() error
}

// Check pings the stores and the queue. Failures are logged and returned;
// the caller decides whether an unhealthy dependency is fatal.
func Check(ctx context.Context, stores StoreChecker, queues QueueChecker) error {
	var errs []error
	if err := stores.DoHealthCheck(ctx); err != nil {
		logger.Error().Err(err).Msg("One or more stores are not healthy.")
		errs = append(errs, err)
	}
	if queues != nil {
		if err := queues.IsConnectionHealthy(); err != nil {
			logger.Error().Err(err).Msg("One or more queue connections are not healthy.")
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		logger.Debug().Msg("Health check passed.")
	}
	return errors.Join(errs...)
}
