package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAddJob(t *testing.T) {
	var mu sync.Mutex
	var calls int

	sched := New(nil)
	err := sched.AddJob("tick", "@every 1s", func(context.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	sched.Start(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("expected at least one call")
	}
}

func TestAddJob_ReplacesSameName(t *testing.T) {
	sched := New(nil)
	sched.AddJob("sweep", "@every 1h", func(context.Context) {})
	sched.AddJob("sweep", "@every 2h", func(context.Context) {})

	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d, want 1", sched.JobCount())
	}
	if n := len(sched.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	if err := sched.AddJob("bad", "invalid-cron", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	sched.AddJob("a", "@every 1h", func(context.Context) {})
	sched.AddJob("b", "@every 2h", func(context.Context) {})

	sched.RemoveJob("a")
	sched.RemoveJob("missing")

	jobs := sched.Jobs()
	if len(jobs) != 1 || jobs[0] != "b" {
		t.Errorf("jobs = %v", jobs)
	}
}
