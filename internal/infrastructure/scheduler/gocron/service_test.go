package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerService(t *testing.T) {
	t.Run("Schedule Recovery", func(t *testing.T) {
		svc := NewScheduler()
		svc.Start()
		defer svc.Stop()

		require.True(t, svc.WhenNextRecovery().IsZero())

		done := make(chan struct{}, 10)
		recoverFunc := func() {
			done <- struct{}{}
		}

		now := time.Now()
		err := svc.ScheduleRecovery(time.Second, recoverFunc)
		require.NoError(t, err)

		next := svc.WhenNextRecovery()
		require.False(t, next.IsZero())
		require.True(t, next.After(now))

		// runs repeatedly
		for i := 0; i < 2; i++ {
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				require.Fail(t, "job did not execute within expected time")
			}
		}
	})

	t.Run("Reschedule Replaces Job", func(t *testing.T) {
		svc := NewScheduler()
		svc.Start()
		defer svc.Stop()

		var first, second atomic.Int32
		err := svc.ScheduleRecovery(time.Hour, func() { first.Add(1) })
		require.NoError(t, err)

		err = svc.ScheduleRecovery(500*time.Millisecond, func() { second.Add(1) })
		require.NoError(t, err)
		require.True(t, svc.WhenNextRecovery().Before(time.Now().Add(time.Minute)))

		require.Eventually(t, func() bool {
			return second.Load() > 0
		}, 5*time.Second, 100*time.Millisecond)
		require.Zero(t, first.Load())
	})

	t.Run("Invalid Interval", func(t *testing.T) {
		svc := NewScheduler()
		svc.Start()
		defer svc.Stop()

		err := svc.ScheduleRecovery(0, func() {})
		require.Error(t, err)

		err = svc.ScheduleRecovery(-time.Second, func() {})
		require.Error(t, err)

		err = svc.ScheduleRecovery(time.Second, nil)
		require.Error(t, err)

		require.True(t, svc.WhenNextRecovery().IsZero())
	})
}
