package cron

import (
	"path/filepath"
	"testing"
	"time"
)

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(filepath.Join(t.TempDir(), "jobs.json"), nil)
}

func TestNextRun_At(t *testing.T) {
	s := testService(t)
	now := time.Now().UnixMilli()

	future := now + 60_000
	if got := s.nextRun(Schedule{Kind: "at", AtMS: &future}, now); got == nil || *got != future {
		t.Fatalf("nextRun(at future) = %v, want %d", got, future)
	}

	past := now - 60_000
	if got := s.nextRun(Schedule{Kind: "at", AtMS: &past}, now); got != nil {
		t.Fatalf("nextRun(at past) = %d, want nil", *got)
	}
}

func TestNextRun_Every(t *testing.T) {
	s := testService(t)
	now := int64(1_700_000_000_000)

	every := int64(90_000)
	if got := s.nextRun(Schedule{Kind: "every", EveryMS: &every}, now); got == nil || *got != now+every {
		t.Fatalf("nextRun(every) = %v, want %d", got, now+every)
	}

	zero := int64(0)
	if got := s.nextRun(Schedule{Kind: "every", EveryMS: &zero}, now); got != nil {
		t.Fatal("zero period must not schedule")
	}
}

func TestNextRun_CronExpr(t *testing.T) {
	s := testService(t)
	// 2026-08-31 10:30 UTC; next daily 12:00 run is the same day.
	now := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC).UnixMilli()

	got := s.nextRun(Schedule{Kind: "cron", Expr: "0 12 * * *"}, now)
	if got == nil {
		t.Fatal("valid cron expression did not schedule")
	}
	next := time.UnixMilli(*got).UTC()
	if next.Hour() != 12 || next.Minute() != 0 || next.Day() != 31 {
		t.Fatalf("next run = %v, want 12:00 the same day", next)
	}

	if got := s.nextRun(Schedule{Kind: "cron", Expr: "not a cron"}, now); got != nil {
		t.Fatal("invalid expression scheduled a run")
	}
}

func TestAdd_RejectsBadCron(t *testing.T) {
	s := testService(t)
	if _, err := s.Add("bad", Schedule{Kind: "cron", Expr: "banana"}, Delivery{Text: "x"}); err == nil {
		t.Fatal("invalid cron expression accepted")
	}
}

func TestAddRemoveAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := NewService(path, nil)

	every := int64(60_000)
	job, err := s.Add("water", Schedule{Kind: "every", EveryMS: &every}, Delivery{GroupID: 42, Text: "drink water"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.DeleteAfterRun {
		t.Fatal("periodic job marked one-shot")
	}

	// A fresh service over the same file sees the job.
	s2 := NewService(path, nil)
	jobs := s2.List()
	if len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].Delivery.Text != "drink water" {
		t.Fatalf("reloaded jobs = %+v", jobs)
	}

	if !s2.Remove(job.ID) {
		t.Fatal("Remove did not find the job")
	}
	if len(s2.List()) != 0 {
		t.Fatal("job survived removal")
	}
}

func TestTakeDue_ClearsNextRun(t *testing.T) {
	s := testService(t)
	now := time.Unix(1_700_000_000, 0)
	s.nowFunc = func() time.Time { return now }
	s.running = true

	past := now.Add(-time.Second).UnixMilli()
	s.jobs = append(s.jobs, Job{ID: "j1", Enabled: true, NextRunAtMS: &past, Schedule: Schedule{Kind: "at", AtMS: &past}})

	due := s.takeDue()
	if len(due) != 1 || due[0].ID != "j1" {
		t.Fatalf("due = %+v", due)
	}
	if s.takeDue() != nil {
		t.Fatal("job stayed due after being taken")
	}
}

func TestFire_OneShotRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	delivered := 0
	s := NewService(path, func(Job) error {
		delivered++
		return nil
	})
	s.running = true

	past := time.Now().Add(-time.Second).UnixMilli()
	s.jobs = append(s.jobs, Job{
		ID: "j1", Enabled: true, NextRunAtMS: &past,
		Schedule: Schedule{Kind: "at", AtMS: &past}, DeleteAfterRun: true,
	})

	for _, job := range s.takeDue() {
		s.fire(job)
	}
	if delivered != 1 {
		t.Fatalf("delivered %d times, want 1", delivered)
	}
	if len(s.List()) != 0 {
		t.Fatal("one-shot job survived firing")
	}
}
