package main

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/varunnair-io/distriflow-backend/internal/worklock"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

const (
	defaultPollMs = 30000
	maxBackoff    = 5 * time.Minute
	jitterWindow  = 500 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// dispatchRunner is the dispatcher surface the worker drives.
type dispatchRunner interface {
	Run(ctx context.Context, trigger string) error
}

type ServiceParams struct {
	Logger         *logger.Logger
	Runner         dispatchRunner
	Lock           worklock.Lock
	PollIntervalMS int
}

// Service is the safety-net poll loop. The API process triggers dispatch
// passes on enqueue; this worker sweeps up events those passes missed
// (process crashes, dropped triggers, subscribers that were down).
type Service struct {
	logg         *logger.Logger
	runner       dispatchRunner
	lock         worklock.Lock
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Runner == nil {
		return nil, errors.New("dispatch runner is required")
	}
	lock := params.Lock
	if lock == nil {
		lock = worklock.Noop()
	}
	pollMs := params.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	return &Service{
		logg:         params.Logger,
		runner:       params.Runner,
		lock:         lock,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "dispatch worker context canceled")
			return ctx.Err()
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			s.logg.Error(ctx, "dispatch worker pass error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval
		if err := s.sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// runOnce executes a single locked dispatch pass. Losing the lock race is
// normal when several worker instances run.
func (s *Service) runOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.logg.Info(ctx, "dispatch lock held elsewhere, skipping pass")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release dispatch lock", err)
		}
	}()

	return s.runner.Run(ctx, "poll")
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if jitterWindow <= 0 {
		return d
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
