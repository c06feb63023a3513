package state

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errUnavailable = errors.New("state: unavailable")

func TestManager_AutoSave_ticksUntilCanceled(t *testing.T) {
	// lower the 5s floor so the 5ms interval below is honored
	defer func(floor time.Duration) { minAutoSaveInterval = floor }(minAutoSaveInterval)
	minAutoSaveInterval = time.Millisecond
	m := New(t.TempDir())
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.AutoSave(ctx, 5*time.Millisecond, func() error {
			atomic.AddInt32(&calls, 1)
			return nil
		}, nil)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt32(&calls) == 0 {
		t.Errorf("AutoSave: want at least one tick before cancellation")
	}
}

func TestManager_AutoSave_reportsErrorsWithoutStopping(t *testing.T) {
	// lower the 5s floor so the 5ms interval below is honored
	defer func(floor time.Duration) { minAutoSaveInterval = floor }(minAutoSaveInterval)
	minAutoSaveInterval = time.Millisecond
	m := New(t.TempDir())
	var calls, errs int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.AutoSave(ctx, 5*time.Millisecond, func() error {
			n := atomic.AddInt32(&calls, 1)
			if n <= 2 {
				return errUnavailable
			}
			return nil
		}, func(error) {
			atomic.AddInt32(&errs, 1)
		})
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt32(&errs) == 0 {
		t.Errorf("AutoSave: want onError invoked at least once")
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("AutoSave: want ticking to continue past the failing calls, got %d calls", calls)
	}
}
