package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
)

type PhaseResult struct {
	Phase    Phase
	Duration time.Duration
	Forced   bool
	// Abandoned names the tasks, servers or resources that did not finish
	// within the phase timeout.
	Abandoned []string
}

type Report struct {
	Phases   []PhaseResult
	Forced   bool
	Cause    error
	ExitCode int
}

func (s *Supervisor) run(cause error) Report {
	s.mu.Lock()
	tasks := append([]*TaskHandle(nil), s.tasks...)
	ingress, servers := s.ingress, append([]Server(nil), s.servers...)
	connections, resources := s.connections, append([]Resource(nil), s.resources...)
	s.mu.Unlock()

	report := Report{Cause: cause}
	steps := []struct {
		phase Phase
		run   func() []string
	}{
		{DrainingIngress, func() []string { return s.drainIngress(ingress, servers) }},
		{StoppingBackgroundTasks, func() []string { return s.stopTasks(tasks) }},
		{ClosingConnections, func() []string { return s.closeConnections(connections) }},
		{FlushingResources, func() []string { return s.flushResources(resources) }},
	}
	for _, step := range steps {
		s.setPhase(step.phase)
		start := time.Now()
		abandoned := step.run()
		result := PhaseResult{
			Phase:     step.phase,
			Duration:  time.Since(start),
			Forced:    len(abandoned) > 0,
			Abandoned: abandoned,
		}
		metrics.RecordShutdownPhase(string(step.phase), result.Duration, result.Forced)
		report.Phases = append(report.Phases, result)
		report.Forced = report.Forced || result.Forced
	}
	s.setPhase(Terminated)

	switch {
	case cause != nil:
		report.ExitCode = ExitFatal
	case report.Forced:
		report.ExitCode = ExitForced
	default:
		report.ExitCode = ExitClean
	}
	logger.Info().
		Bool("forced", report.Forced).
		Int("exit_code", report.ExitCode).
		Msg("shutdown complete")
	return report
}

func (s *Supervisor) drainIngress(ingress Ingress, servers []Server) []string {
	if ingress != nil {
		ingress.CloseIngress()
	}
	ctx, cancel := context.WithTimeout(s.base, s.cfg.GracefulTimeout)
	defer cancel()

	var mu sync.Mutex
	var abandoned []string
	g := new(errgroup.Group)
	for i, server := range servers {
		name := fmt.Sprintf("http-server-%d", i)
		server := server
		g.Go(func() error {
			err := server.Shutdown(ctx)
			if err == nil {
				return nil
			}
			logger.Warn().Err(err).Str("server", name).
				Msg("in-flight requests did not finish in time, closing the server")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Str("server", name).Msg("failed to close the server")
			}
			mu.Lock()
			abandoned = append(abandoned, name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return abandoned
}

func (s *Supervisor) stopTasks(tasks []*TaskHandle) []string {
	for _, task := range tasks {
		task.cancel()
	}
	ctx, cancel := context.WithTimeout(s.base, s.cfg.BackgroundTimeout)
	defer cancel()

	var mu sync.Mutex
	var abandoned []string
	g := new(errgroup.Group)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			select {
			case <-task.done:
			case <-ctx.Done():
				logger.Warn().Str("task", task.name).Dur("timeout", s.cfg.BackgroundTimeout).
					Msg("task ignored cancellation, force-abandoned")
				mu.Lock()
				abandoned = append(abandoned, task.name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return abandoned
}

func (s *Supervisor) closeConnections(connections ConnectionCloser) []string {
	if connections == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.base, s.cfg.ConnectionGrace+s.cfg.GracefulTimeout)
	defer cancel()

	if err := connections.Shutdown(ctx, s.cfg.ConnectionGrace); err != nil {
		logger.Warn().Err(err).Msg("push connections did not close in time")
		return []string{"push-connections"}
	}
	return nil
}

// flushResources closes resources one after another in registration order.
// Once the budget runs out the remaining resources are skipped.
func (s *Supervisor) flushResources(resources []Resource) []string {
	ctx, cancel := context.WithTimeout(s.base, s.cfg.DbTimeout)
	defer cancel()

	var closed, abandoned []string
	for _, resource := range resources {
		if ctx.Err() != nil {
			abandoned = append(abandoned, resource.Name)
			continue
		}
		if err := closeWithin(ctx, resource); err != nil {
			logger.Warn().Err(err).Str("resource", resource.Name).Msg("failed to close resource")
			abandoned = append(abandoned, resource.Name)
			continue
		}
		closed = append(closed, resource.Name)
	}
	logger.Info().Strs("closed", closed).Strs("forced", abandoned).Msg("resources flushed")
	return abandoned
}

// closeWithin stops waiting on a resource whose Close ignores ctx.
func closeWithin(ctx context.Context, resource Resource) error {
	done := make(chan error, 1)
	go func() { done <- resource.Close(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Join(errors.New("close timed out"), ctx.Err())
	}
}
