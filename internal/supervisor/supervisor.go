// Package supervisor runs the process's long-lived runners (queue consumer,
// log flusher) under one lifecycle with graceful shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner is one long-running background process. Run blocks until the
// context is cancelled or a fatal error occurs; context.Canceled counts as a
// graceful stop.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Logger is the minimal structured logging surface the supervisor needs.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Supervisor starts every registered runner in its own goroutine and tracks
// their health. A failed runner is recorded but does not take the others
// down; the orchestration layer decides whether to restart the process.
type Supervisor struct {
	runners         map[string]Runner
	health          *HealthTracker
	logger          Logger
	shutdownTimeout time.Duration
}

type Option func(*Supervisor)

// WithShutdownTimeout bounds how long Run waits for runners after the
// context is cancelled. Zero waits indefinitely.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		s.shutdownTimeout = timeout
	}
}

func New(logger Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		runners: make(map[string]Runner),
		health:  NewHealthTracker(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a runner. Duplicate names panic since registration happens
// once at startup.
func (s *Supervisor) Register(r Runner) {
	if _, exists := s.runners[r.Name()]; exists {
		panic(fmt.Sprintf("runner %s already registered", r.Name()))
	}
	s.runners[r.Name()] = r
}

func (s *Supervisor) Health() *HealthTracker {
	return s.health
}

// Run starts all runners and blocks until they have all exited or the
// context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.runners) == 0 {
		s.logger.Warn("no runners registered")
		return nil
	}
	s.logger.Info("starting runners", zap.Int("count", len(s.runners)))

	var wg sync.WaitGroup
	for name, runner := range s.runners {
		wg.Add(1)
		go func(name string, r Runner) {
			defer wg.Done()
			s.logger.Info("runner starting", zap.String("runner", name))
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("runner failed", zap.String("runner", name), zap.Error(err))
				s.health.MarkFailed(name)
				return
			}
			s.logger.Info("runner stopped", zap.String("runner", name))
			s.health.MarkHealthy(name)
		}(name, runner)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested, waiting for runners")
		if s.shutdownTimeout > 0 {
			select {
			case <-waitChan(&wg):
				return nil
			case <-time.After(s.shutdownTimeout):
				s.logger.Warn("shutdown timeout exceeded", zap.Duration("timeout", s.shutdownTimeout))
				return fmt.Errorf("shutdown timeout exceeded (%v)", s.shutdownTimeout)
			}
		}
		wg.Wait()
		return nil
	case <-waitChan(&wg):
		s.logger.Warn("all runners have exited")
		return nil
	}
}

func waitChan(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
