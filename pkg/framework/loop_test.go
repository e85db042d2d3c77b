package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopTriggerNext(t *testing.T) {
	var triggered int32
	loop := &Loop{Interval: time.Hour}
	loop.AddController(ControlFunc(func(cc ControlContext) error {
		if cc.Triggered() {
			atomic.AddInt32(&triggered, 1)
		}
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	loop.TriggerNext()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&triggered) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopInterval(t *testing.T) {
	var ticks int32
	loop := &Loop{Interval: time.Millisecond}
	loop.AddController(ControlFunc(func(cc ControlContext) error {
		atomic.AddInt32(&ticks, 1)
		return errors.New("ignored")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ticks) >= 3
	}, time.Second, time.Millisecond)
}

func TestLoopTriggerNextNeverBlocks(t *testing.T) {
	loop := NewLoop()
	for i := 0; i < 10; i++ {
		loop.TriggerNext()
	}
}

func TestRunnerWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunnerWith(ctx)
	boom := errors.New("boom")
	runner.Go(
		NamedRun("canceled", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return boom }),
	)
	cancel()
	err := runner.Wait()
	require.Error(t, err)
	require.Equal(t, "boom", err.Error())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Aggregate().Error())
}
