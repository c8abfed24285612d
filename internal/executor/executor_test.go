package executor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/catalog"
)

type fakeStore struct{}

func (fakeStore) SaveCatalog(string, map[string]*catalog.Job) error { return nil }

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(nil, fakeStore{}, "", zerolog.Nop())
}

func TestStartStopLifecycle(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.Create("sleeper", catalog.Definition{Program: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ex := New(cat, zerolog.Nop())

	if err := ex.Start("sleeper"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job, err := cat.Details("sleeper")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if !job.IsRunning() || job.StartTime == 0 {
		t.Fatalf("expected running job with start time set, got %+v", job)
	}

	if err := ex.Stop("sleeper"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, _ = cat.Details("sleeper")
		if !job.IsRunning() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if job.IsRunning() {
		t.Fatalf("expected job to be stopped after Stop()")
	}
	if job.NbrRuns != 1 {
		t.Errorf("NbrRuns = %d, want 1", job.NbrRuns)
	}
}

func TestStartQueuesPendingWhileRunning(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.Create("sleeper", catalog.Definition{Program: []string{"sleep", "2"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ex := New(cat, zerolog.Nop())
	if err := ex.Start("sleeper"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := ex.Start("sleeper"); err != nil {
			t.Fatalf("Start (queue): %v", err)
		}
	}

	job, err := cat.Details("sleeper")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if job.PendingStart != 3 {
		t.Errorf("PendingStart = %d, want 3", job.PendingStart)
	}

	if err := ex.ClearPending("sleeper"); err != nil {
		t.Fatalf("ClearPending: %v", err)
	}
	job, _ = cat.Details("sleeper")
	if job.PendingStart != 0 {
		t.Errorf("PendingStart after clear = %d, want 0", job.PendingStart)
	}

	_ = ex.Stop("sleeper")
}

func TestStartUnknownJob(t *testing.T) {
	cat := newTestCatalog(t)
	ex := New(cat, zerolog.Nop())

	if err := ex.Start("ghost"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

func TestStopNotRunning(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.Create("idle", catalog.Definition{Program: []string{"true"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ex := New(cat, zerolog.Nop())
	if err := ex.Stop("idle"); err == nil {
		t.Fatalf("expected ERROR_JOB_IS_NOT_RUNNING")
	}
}

func TestLaunchFailureLeavesCatalogUntouched(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.Create("bogus", catalog.Definition{Program: []string{"/does/not/exist/binary"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ex := New(cat, zerolog.Nop())
	if err := ex.Start("bogus"); err == nil {
		t.Fatalf("expected launch failure")
	}

	job, _ := cat.Details("bogus")
	if job.IsRunning() {
		t.Fatalf("catalog state should be untouched after launch failure")
	}
}
