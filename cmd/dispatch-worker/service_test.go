package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunnair-io/distriflow-backend/pkg/logger"
)

type fakeRunner struct {
	runs    int
	lastTag string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, trigger string) error {
	f.runs++
	f.lastTag = trigger
	return f.err
}

type fakeLock struct {
	acquired bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	return f.acquired, f.err
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestRunOnce_RunsAndReleasesWhenLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	lock := &fakeLock{acquired: true}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Runner: runner, Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.runOnce(context.Background()))
	assert.Equal(t, 1, runner.runs)
	assert.Equal(t, "poll", runner.lastTag)
	assert.Equal(t, 1, lock.releases)
}

func TestRunOnce_SkipsWhenLockHeldElsewhere(t *testing.T) {
	runner := &fakeRunner{}
	lock := &fakeLock{acquired: false}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Runner: runner, Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.runOnce(context.Background()))
	assert.Zero(t, runner.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnce_SurfacesRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	lock := &fakeLock{acquired: true}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Runner: runner, Lock: lock})
	require.NoError(t, err)

	assert.Error(t, svc.runOnce(context.Background()))
	assert.Equal(t, 1, lock.releases)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Runner: runner, Lock: &fakeLock{acquired: true}, PollIntervalMS: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, runner.runs, 1)
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 500 * time.Millisecond

	next := nextBackoff(base, base, max)
	assert.Equal(t, 200*time.Millisecond, next)
	next = nextBackoff(next, base, max)
	assert.Equal(t, 400*time.Millisecond, next)
	next = nextBackoff(next, base, max)
	assert.Equal(t, max, next)
	assert.Equal(t, max, nextBackoff(max, base, max))
}
