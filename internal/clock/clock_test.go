package clock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now_Advances(t *testing.T) {
	c := NewRealClock()

	first := c.Now()
	time.Sleep(10 * time.Millisecond)
	second := c.Now()

	if !second.After(first) {
		t.Errorf("Now() should advance over time: first=%v, second=%v", first, second)
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	c := NewRealClock()

	var wg sync.WaitGroup
	wg.Add(1)
	timer := c.AfterFunc(10*time.Millisecond, wg.Done)
	if timer == nil {
		t.Fatal("AfterFunc should return a non-nil Timer")
	}
	wg.Wait()
}

func TestRealClock_AfterFunc_Stop(t *testing.T) {
	c := NewRealClock()

	fired := make(chan struct{})
	timer := c.AfterFunc(time.Hour, func() { close(fired) })
	if !timer.Stop() {
		t.Error("Stop() before firing should return true")
	}

	select {
	case <-fired:
		t.Error("stopped timer should not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealClock_Sleep(t *testing.T) {
	c := NewRealClock()

	start := time.Now()
	if err := c.Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v, want at least 20ms", elapsed)
	}
}

func TestRealClock_Sleep_Cancelled(t *testing.T) {
	c := NewRealClock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := c.Sleep(ctx, time.Hour)
	if err != context.Canceled {
		t.Errorf("Sleep on cancelled context = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled Sleep took %v, should return promptly", elapsed)
	}
}

func TestMockClock_SleepAdvancesNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if err := c.Sleep(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
	if err := c.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}

	if got := c.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want start+5s", got)
	}

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 3*time.Second {
		t.Errorf("Sleeps() = %v, want [2s 3s]", sleeps)
	}
}

func TestMockClock_SleepHonorsCancellation(t *testing.T) {
	c := NewMockClock(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Second); err != context.Canceled {
		t.Errorf("Sleep on cancelled context = %v, want context.Canceled", err)
	}
	if len(c.Sleeps()) != 0 {
		t.Error("cancelled Sleep should not be recorded")
	}
}
