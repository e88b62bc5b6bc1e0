package supervisor

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

var logger zerolog.Logger = log.Logger

func SetLogger(customLogger zerolog.Logger) {
	logger = customLogger
}

type Phase string

const (
	Running                 Phase = "running"
	DrainingIngress         Phase = "draining_ingress"
	StoppingBackgroundTasks Phase = "stopping_background_tasks"
	ClosingConnections      Phase = "closing_connections"
	FlushingResources       Phase = "flushing_resources"
	Terminated              Phase = "terminated"
)

const (
	ExitClean  = 0
	ExitFatal  = 1
	ExitForced = 3
)

// Ingress is whatever accepts new push connections.
type Ingress interface {
	CloseIngress()
}

// Server is an HTTP server draining in-flight requests, usually *http.Server.
type Server interface {
	Shutdown(ctx context.Context) error
	Close() error
}

// ConnectionCloser notifies live connections, waits grace and closes them.
type ConnectionCloser interface {
	Shutdown(ctx context.Context, grace time.Duration) error
}

// Resource is closed in the last phase, in registration order.
type Resource struct {
	Name  string
	Close func(ctx context.Context) error
}

type Config struct {
	GracefulTimeout   time.Duration
	BackgroundTimeout time.Duration
	DbTimeout         time.Duration
	ConnectionGrace   time.Duration
}

func NewConfig(cfg *config.Config) Config {
	return Config{
		GracefulTimeout:   cfg.Shutdown.Graceful(),
		BackgroundTimeout: cfg.Shutdown.Background(),
		DbTimeout:         cfg.Shutdown.Db(),
		ConnectionGrace:   cfg.Stream.ShutdownGrace,
	}
}

// TaskHandle is one background task: its cancellation and its completion.
type TaskHandle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (h *TaskHandle) Name() string {
	return h.name
}

func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Err is the error the task returned. Only valid once Done is closed.
func (h *TaskHandle) Err() error {
	return h.err
}

// Supervisor owns every background task and the resources they share, and
// tears them down in strictly sequential phases.
type Supervisor struct {
	cfg  Config
	base context.Context

	mu          sync.Mutex
	tasks       []*TaskHandle
	ingress     Ingress
	servers     []Server
	connections ConnectionCloser
	resources   []Resource
	phase       Phase

	fatal     chan error
	shutdown  sync.Once
	report    Report
	completed chan struct{}
}

// New creates a supervisor. Tasks inherit the values of ctx, such as its
// logger, but never its cancellation.
func New(ctx context.Context, cfg Config) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		base:      context.WithoutCancel(ctx),
		phase:     Running,
		fatal:     make(chan error, 1),
		completed: make(chan struct{}),
	}
}

// Go starts fn as a supervised task. A task returning a Fatal error starts
// the shutdown.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) *TaskHandle {
	ctx, cancel := context.WithCancel(s.base)
	handle := &TaskHandle{name: name, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.tasks = append(s.tasks, handle)
	s.mu.Unlock()

	go func() {
		defer close(handle.done)
		handle.err = fn(ctx)
		switch {
		case handle.err == nil || errors.Is(handle.err, context.Canceled):
			logger.Info().Str("task", name).Msg("task stopped")
		case types.IsFatal(handle.err):
			logger.Error().Err(handle.err).Str("task", name).Msg("task failed with a fatal error")
			select {
			case s.fatal <- handle.err:
			default:
			}
		default:
			logger.Error().Err(handle.err).Str("task", name).Msg("task stopped with an error")
		}
	}()
	return handle
}

func (s *Supervisor) SetIngress(ingress Ingress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingress = ingress
}

func (s *Supervisor) AddServer(server Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = append(s.servers, server)
}

func (s *Supervisor) SetConnections(connections ConnectionCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections = connections
}

func (s *Supervisor) AddResource(name string, close func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, Resource{Name: name, Close: close})
}

// Fatal receives the first fatal task error.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Supervisor) setPhase(phase Phase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
	logger.Info().Str("phase", string(phase)).Msg("shutdown phase started")
}

// Wait blocks until SIGINT, SIGTERM, a fatal task error or the end of ctx,
// then shuts down.
func (s *Supervisor) Wait(ctx context.Context) Report {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cause error
	select {
	case <-sigCtx.Done():
		logger.Info().Msg("received shutdown signal")
	case cause = <-s.fatal:
		logger.Error().Err(cause).Msg("shutting down after a fatal error")
	}
	return s.Shutdown(cause)
}

// Shutdown runs every phase once. cause is the fatal error that triggered it,
// if any. Concurrent callers get the same report.
func (s *Supervisor) Shutdown(cause error) Report {
	s.shutdown.Do(func() {
		s.report = s.run(cause)
		close(s.completed)
	})
	<-s.completed
	return s.report
}
