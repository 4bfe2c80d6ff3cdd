package followup

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(&coreconfig.Config{
		Logging: coreconfig.LoggingConfig{Level: "error", Format: "text"},
	})
	os.Exit(m.Run())
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestScheduleFires(t *testing.T) {
	r := newTestRegistry(t)

	done := make(chan struct{})
	err := r.Schedule(1, "reminder_short", 20*time.Millisecond, func(context.Context) {
		close(done)
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := r.Pending(1); len(got) != 1 || got[0] != "reminder_short" {
		t.Fatalf("pending = %v", got)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow-up did not fire")
	}

	// Bookkeeping is cleared shortly after the action ran.
	deadline := time.Now().Add(time.Second)
	for len(r.Pending(1)) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pending not cleared: %v", r.Pending(1))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCancelAllPreventsFiring(t *testing.T) {
	r := newTestRegistry(t)

	var fired atomic.Int32
	for _, key := range []string{"reminder_short", "reminder_long"} {
		if err := r.Schedule(1, key, 50*time.Millisecond, func(context.Context) {
			fired.Add(1)
		}); err != nil {
			t.Fatalf("schedule %s: %v", key, err)
		}
	}

	if n := r.CancelAll(1); n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}
	if got := r.Pending(1); len(got) != 0 {
		t.Fatalf("pending after cancel = %v", got)
	}

	time.Sleep(150 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("%d cancelled follow-ups fired", n)
	}
}

func TestCancelAllIsScopedToUser(t *testing.T) {
	r := newTestRegistry(t)

	done := make(chan struct{})
	if err := r.Schedule(1, "reminder_short", time.Hour, func(context.Context) {}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := r.Schedule(2, "reminder_short", 20*time.Millisecond, func(context.Context) {
		close(done)
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if n := r.CancelAll(1); n != 1 {
		t.Fatalf("cancelled %d, want 1", n)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("other user's follow-up was cancelled")
	}
}

func TestCancelAllEmpty(t *testing.T) {
	r := newTestRegistry(t)
	if n := r.CancelAll(42); n != 0 {
		t.Fatalf("cancelled %d on empty registry", n)
	}
}
