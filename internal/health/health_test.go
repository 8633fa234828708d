package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testMonitor(interval time.Duration) *Monitor {
	return NewMonitor(Config{
		Interval:     interval,
		ProbeTimeout: time.Second,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestMonitorInitialProbe(t *testing.T) {
	m := testMonitor(time.Hour)
	m.Register("up", func(ctx context.Context) error { return nil })
	m.Register("down", func(ctx context.Context) error { return errors.New("refused") })

	m.Start(context.Background())
	defer m.Stop()

	checks := m.Checks()
	if len(checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(checks))
	}
	// Sorted by name: "down" then "up".
	if checks[0].Name != "down" || checks[0].OK {
		t.Errorf("checks[0] = %+v, want down/not-OK", checks[0])
	}
	if checks[0].Error != "refused" {
		t.Errorf("checks[0].Error = %q", checks[0].Error)
	}
	if checks[1].Name != "up" || !checks[1].OK {
		t.Errorf("checks[1] = %+v, want up/OK", checks[1])
	}
}

func TestMonitorObservesRecovery(t *testing.T) {
	var healthy atomic.Bool
	m := testMonitor(5 * time.Millisecond)
	m.Register("svc", func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("not yet")
	})

	m.Start(context.Background())
	defer m.Stop()

	if c := m.Checks()[0]; c.OK {
		t.Fatalf("check = %+v, want not-OK before recovery", c)
	}

	healthy.Store(true)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Checks()[0].OK {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("monitor never observed the recovery")
}

func TestMonitorObservesOutage(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	m := testMonitor(5 * time.Millisecond)
	m.Register("svc", func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("gone")
	})

	m.Start(context.Background())
	defer m.Stop()

	healthy.Store(false)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c := m.Checks()[0]; !c.OK {
			if c.Error != "gone" {
				t.Errorf("Error = %q, want %q", c.Error, "gone")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("monitor never observed the outage")
}

func TestMonitorStopHalts(t *testing.T) {
	var probes atomic.Int32
	m := testMonitor(time.Millisecond)
	m.Register("svc", func(ctx context.Context) error {
		probes.Add(1)
		return nil
	})

	m.Start(context.Background())
	m.Stop()

	before := probes.Load()
	time.Sleep(20 * time.Millisecond)
	if after := probes.Load(); after != before {
		t.Errorf("probes continued after Stop: %d -> %d", before, after)
	}
}
