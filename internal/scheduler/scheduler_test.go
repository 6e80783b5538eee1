package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backoffice/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartStop_NoTimerRuns(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{Interval: 50 * time.Millisecond, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	s.Stop()
	assert.False(t, s.Running())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
	assert.Nil(t, s.Status().LastRunAt)
}

func TestTimer_RunsAndSurvivesFailures(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{Interval: 30 * time.Millisecond, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error {
		runs.Add(1)
		return errors.New("upstream down")
	})

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	st := s.Status()
	assert.True(t, st.Running)
	assert.NotNil(t, st.LastRunAt)
	assert.Contains(t, st.LastError, "upstream down")
}

func TestStart_IsIdempotentAndReportsNextRun(t *testing.T) {
	s := New(Config{Interval: time.Hour, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error { return nil })

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	defer s.Stop()

	st := s.Status()
	require.NotNil(t, st.NextRunAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *st.NextRunAt, time.Minute)
	assert.Equal(t, "1h0m0s", st.Interval)
	assert.Equal(t, []string{"quickbooks"}, st.Providers)
}

func TestRunSyncNow(t *testing.T) {
	var qb, cal atomic.Int32
	s := New(Config{Interval: time.Hour, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error {
		qb.Add(1)
		return errors.New("token expired")
	})
	s.Register("google_calendar", func(context.Context) error {
		cal.Add(1)
		return nil
	})

	t.Run("surfaces errors without changing state", func(t *testing.T) {
		err := s.RunSyncNow(context.Background(), "quickbooks")
		assert.EqualError(t, err, "token expired")
		assert.False(t, s.Running())
		assert.NotNil(t, s.Status().LastRunAt)
	})

	t.Run("all providers", func(t *testing.T) {
		err := s.RunSyncNow(context.Background(), ProviderAll)
		assert.ErrorContains(t, err, "quickbooks: token expired")
		assert.Equal(t, int32(2), qb.Load())
		assert.Equal(t, int32(1), cal.Load())
	})

	t.Run("unknown provider", func(t *testing.T) {
		err := s.RunSyncNow(context.Background(), "xero")
		assert.ErrorIs(t, err, domain.ErrValidationFailed)
	})
}

func TestRunSyncNow_OverlappingCallsShareOneRun(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	s := New(Config{Interval: time.Hour, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.RunSyncNow(context.Background(), "quickbooks"))
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.RunSyncNow(context.Background(), "quickbooks"))
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
}

func TestRunSyncNow_CallerCancelDoesNotAbortSharedRun(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	runErr := make(chan error, 1)

	s := New(Config{Interval: time.Hour, Logger: quietLogger()})
	s.Register("quickbooks", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
			runErr <- ctx.Err()
		}
		return nil
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		first <- s.RunSyncNow(reqCtx, "quickbooks")
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		second <- s.RunSyncNow(context.Background(), "quickbooks")
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.NoError(t, <-runErr)
	assert.NoError(t, <-second)
	assert.Equal(t, int32(1), runs.Load())
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

func TestRunSyncNow_SkipsWhenLockHeldElsewhere(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{Interval: time.Hour, Locker: busyLocker{}, Logger: quietLogger()})
	s.Register("quickbooks", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	err := s.RunSyncNow(context.Background(), "quickbooks")
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, int32(0), runs.Load())
}
