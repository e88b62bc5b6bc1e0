package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/clients/horizon"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/db"
	"github.com/stellar-insights/ledger-stream-service/internal/events"
	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

type State int32

const (
	Idle State = iota
	Fetching
	Validating
	Persisting
	Deriving
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Validating:
		return "validating"
	case Persisting:
		return "persisting"
	case Deriving:
		return "deriving"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Store is the part of the relational store the loop writes to. The loop is
// the only writer of the cursor.
type Store interface {
	GetCursor(ctx context.Context) (*types.Cursor, error)
	AdvanceCursor(ctx context.Context, sequence uint32, pagingToken string) error
	SaveLedgerUnit(ctx context.Context, unit types.LedgerUnit) error
}

type Fetcher interface {
	FetchNext(ctx context.Context, cursor types.Cursor) (*horizon.RawBatch, error)
}

type Loop struct {
	store     Store
	fetcher   Fetcher
	validator *validator
	rules     events.Rules
	output    chan<- events.Event
	cfg       *config.IngestionConfig

	state atomic.Int32
}

// NewLoop creates the ingestion loop. Derived events are sent to output; a
// nil output disables derivation.
func NewLoop(
	store Store, fetcher Fetcher, deadLetter DeadLetterStore,
	cfg *config.IngestionConfig, rules events.Rules, output chan<- events.Event,
) *Loop {
	return &Loop{
		store:   store,
		fetcher: fetcher,
		validator: &validator{
			policy:     cfg.MalformedPolicy,
			skipEmpty:  cfg.SkipEmptyMalformedLedgers,
			deadLetter: deadLetter,
		},
		rules:  rules,
		output: output,
		cfg:    cfg,
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	metrics.SetLoopState(int(s))
}

// Run drives the loop until ctx is cancelled or a fatal error occurs. On
// cancellation the unit being persisted is completed before Run returns nil.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState(Stopped)
	logger := log.Ctx(ctx)

	for {
		if ctx.Err() != nil {
			l.setState(Draining)
			logger.Info().Msg("ingestion loop stopped")
			return nil
		}

		l.setState(Fetching)
		cursor, err := l.readCursor(ctx)
		if err != nil {
			return l.exit(ctx, err)
		}
		raw, err := l.fetch(ctx, *cursor)
		if err != nil {
			return l.exit(ctx, err)
		}

		l.setState(Validating)
		planned, err := l.validator.validate(ctx, *cursor, raw)
		if err != nil {
			if types.IsTransient(err) {
				metrics.RecordIngestionError(string(types.TransientIO))
				logger.Warn().Err(err).Msg("transient error while validating batch, retrying")
				if waitErr := utils.SleepContext(ctx, l.cfg.InitialBackoff); waitErr != nil {
					return l.exit(ctx, waitErr)
				}
				continue
			}
			return l.exit(ctx, err)
		}

		if len(planned) == 0 {
			l.setState(Idle)
			if waitErr := utils.SleepContext(ctx, l.cfg.PollInterval); waitErr != nil {
				return l.exit(ctx, waitErr)
			}
			continue
		}

		l.setState(Persisting)
		committed, err := l.persist(ctx, planned)

		if len(committed) > 0 {
			l.setState(Deriving)
			l.emit(ctx, events.Derive(committed, l.rules))
		}
		if err != nil {
			return l.exit(ctx, err)
		}

		l.setState(Idle)
		if len(raw.Ledgers) < l.cfg.BatchSize {
			// caught up with the network
			if waitErr := utils.SleepContext(ctx, l.cfg.PollInterval); waitErr != nil {
				return l.exit(ctx, waitErr)
			}
		}
	}
}

// exit turns the error that interrupted an iteration into the loop result.
// Cancellation is a clean stop, everything else is fatal.
func (l *Loop) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil && !types.IsFatal(err) {
		l.setState(Draining)
		log.Ctx(ctx).Info().Msg("ingestion loop stopped")
		return nil
	}
	metrics.RecordIngestionError(string(types.Fatal))
	log.Ctx(ctx).Error().Err(err).Msg("ingestion loop halted")
	if !types.IsFatal(err) {
		return types.NewFatalError(err)
	}
	return err
}

func (l *Loop) readCursor(ctx context.Context) (*types.Cursor, error) {
	var cursor *types.Cursor
	err := l.retry(ctx, "read cursor", func() error {
		var err error
		cursor, err = l.store.GetCursor(ctx)
		return err
	}, isRetryableStoreError)
	return cursor, err
}

// fetch retries transient failures without limit, with a cool-down once the
// attempt cap is reached. Malformed responses are retried up to the cap and
// then escalate as fatal.
func (l *Loop) fetch(ctx context.Context, cursor types.Cursor) (*horizon.RawBatch, error) {
	var raw *horizon.RawBatch
	malformedAttempts := 0
	err := l.retry(ctx, "fetch ledgers", func() error {
		var err error
		raw, err = l.fetcher.FetchNext(ctx, cursor)
		if types.IsMalformed(err) {
			malformedAttempts++
			if malformedAttempts >= l.cfg.MaxRetries {
				return types.NewFatalError(err)
			}
		}
		return err
	}, func(err error) bool {
		return types.IsTransient(err) || types.IsMalformed(err)
	})
	return raw, err
}

// persist writes the planned units in ascending order, advancing the cursor
// after each commit. It returns the units that were committed.
func (l *Loop) persist(ctx context.Context, planned []plannedUnit) ([]types.LedgerUnit, error) {
	committed := make([]types.LedgerUnit, 0, len(planned))
	for _, p := range planned {
		if ctx.Err() != nil {
			// never start a new unit once shutdown began
			return committed, ctx.Err()
		}
		if err := l.commitUnit(ctx, p); err != nil {
			return committed, err
		}
		if !p.skipped {
			committed = append(committed, p.unit)
		}
	}
	return committed, nil
}

// commitUnit persists one unit and then advances the cursor. It keeps
// running after ctx is cancelled, for at most the unit timeout, so a unit is
// never left half acknowledged.
func (l *Loop) commitUnit(ctx context.Context, p plannedUnit) error {
	unitCtx, cancel := drainContext(ctx, l.cfg.UnitTimeout)
	defer cancel()

	sequence := p.unit.Ledger.Sequence
	logger := log.Ctx(ctx).With().Uint32("sequence", sequence).Logger()

	if !p.skipped {
		err := l.retry(unitCtx, "save ledger", func() error {
			return l.store.SaveLedgerUnit(unitCtx, p.unit)
		}, isRetryableStoreError)
		if err != nil {
			return err
		}
	}

	err := l.retry(unitCtx, "advance cursor", func() error {
		return l.store.AdvanceCursor(unitCtx, sequence, p.unit.PagingToken)
	}, isRetryableStoreError)
	if db.IsCursorRegressionError(err) {
		// the rows are written; a cursor already past this unit is fine
		logger.Warn().Err(err).Msg("cursor already ahead of ledger")
		return nil
	}
	if err != nil {
		return err
	}

	metrics.RecordLedgerIngested(sequence)
	logger.Debug().
		Int("transactions", len(p.unit.Transactions)).
		Int("payments", len(p.unit.Payments)).
		Bool("skipped", p.skipped).
		Msg("ledger committed")
	return nil
}

func (l *Loop) emit(ctx context.Context, derived []events.Event) {
	if l.output == nil {
		return
	}
	for i, event := range derived {
		select {
		case l.output <- event:
		case <-ctx.Done():
			log.Ctx(ctx).Warn().Int("dropped", len(derived)-i).
				Msg("shutdown while handing events to the broadcaster, dropping the rest")
			return
		}
	}
}

// retry runs fn until it succeeds, returns a non-retryable error or ctx is
// done. Attempts back off exponentially; after MaxRetries attempts the loop
// cools down and starts over.
func (l *Loop) retry(ctx context.Context, operation string, fn func() error, retryable func(error) bool) error {
	logger := log.Ctx(ctx).With().Str("operation", operation).Logger()
	attempt := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		metrics.RecordIngestionError(string(kindOf(err)))

		wait := utils.Backoff(l.cfg.InitialBackoff, l.cfg.MaxBackoff, attempt)
		attempt++
		if attempt >= l.cfg.MaxRetries {
			logger.Error().Err(err).Int("attempts", attempt).
				Dur("coolDown", l.cfg.RetryCoolDown).Msg("retries exhausted, cooling down")
			wait = l.cfg.RetryCoolDown
			attempt = 0
		} else {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying")
		}

		if waitErr := utils.SleepContext(ctx, wait); waitErr != nil {
			return errors.Join(err, waitErr)
		}
	}
}

func isRetryableStoreError(err error) bool {
	return !types.IsFatal(err) && !db.IsCursorRegressionError(err) && !errors.Is(err, context.Canceled)
}

func kindOf(err error) types.ErrorKind {
	if kind := types.KindOf(err); kind != "" {
		return kind
	}
	return types.TransientIO
}

// drainContext returns a context that ignores the cancellation of parent
// for at most grace after parent is done.
func drainContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		time.AfterFunc(grace, cancel)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}
