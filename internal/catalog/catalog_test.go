package catalog_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

type fakeStore struct {
	saves int
	last  map[string]*catalog.Job
}

func (f *fakeStore) SaveCatalog(path string, jobs map[string]*catalog.Job) error {
	f.saves++
	f.last = jobs
	return nil
}

func newCatalog() (*catalog.Catalog, *fakeStore) {
	store := &fakeStore{}
	cat := catalog.New(nil, store, "/tmp/kiwibes.json", zerolog.Nop())
	return cat, store
}

func TestCreateListDetails(t *testing.T) {
	cat, store := newCatalog()

	def := catalog.Definition{Program: []string{"/bin/echo", "hi"}, Schedule: "", MaxRuntime: 0}
	require.NoError(t, cat.Create("job-a", def))
	assert.Equal(t, 1, store.saves)

	assert.Equal(t, []string{"job-a"}, cat.List())

	job, err := cat.Details("job-a")
	require.NoError(t, err)
	assert.Equal(t, "job-a", job.Name)
	assert.Equal(t, catalog.StatusStopped, job.Status)
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	cat, _ := newCatalog()
	def := catalog.Definition{Program: []string{"/bin/true"}}
	require.NoError(t, cat.Create("dup", def))

	err := cat.Create("dup", def)
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobNameTaken, code)
}

func TestCreateInvalidDefinitionRejected(t *testing.T) {
	cat, _ := newCatalog()

	err := cat.Create("bad", catalog.Definition{Program: nil})
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobDescriptionInvalid, code)
}

func TestCreateInvalidScheduleRejected(t *testing.T) {
	cat, _ := newCatalog()

	err := cat.Create("bad-sched", catalog.Definition{Program: []string{"/bin/true"}, Schedule: "not a cron"})
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobScheduleInvalid, code)
}

func TestScheduledFiltersToNonEmptySchedule(t *testing.T) {
	cat, _ := newCatalog()
	require.NoError(t, cat.Create("scheduled", catalog.Definition{Program: []string{"/bin/true"}, Schedule: "* * * * * *"}))
	require.NoError(t, cat.Create("unscheduled", catalog.Definition{Program: []string{"/bin/true"}}))

	assert.Equal(t, []string{"scheduled"}, cat.Scheduled())
}

func TestEditRejectsRunningJob(t *testing.T) {
	cat, _ := newCatalog()
	def := catalog.Definition{Program: []string{"/bin/true"}}
	require.NoError(t, cat.Create("job", def))
	require.NoError(t, cat.MarkStarted("job", 100))

	err := cat.Edit("job", catalog.Definition{Program: []string{"/bin/false"}})
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobIsRunning, code)
}

func TestDeleteRejectsRunningJob(t *testing.T) {
	cat, _ := newCatalog()
	def := catalog.Definition{Program: []string{"/bin/true"}}
	require.NoError(t, cat.Create("job", def))
	require.NoError(t, cat.MarkStarted("job", 100))

	err := cat.Delete("job")
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobIsRunning, code)
}

func TestMarkStartedAndFinishedUpdatesStatistics(t *testing.T) {
	cat, _ := newCatalog()
	def := catalog.Definition{Program: []string{"/bin/true"}}
	require.NoError(t, cat.Create("job", def))

	require.NoError(t, cat.MarkStarted("job", 1000))
	job, _ := cat.Details("job")
	assert.True(t, job.IsRunning())
	assert.Equal(t, int64(1000), job.StartTime)

	require.NoError(t, cat.MarkFinished("job", 5.0))
	job, _ = cat.Details("job")
	assert.False(t, job.IsRunning())
	assert.Equal(t, int64(0), job.StartTime)
	assert.Equal(t, int64(1), job.NbrRuns)
	assert.InDelta(t, 5.0, job.AvgRuntime, 1e-9)

	require.NoError(t, cat.MarkStarted("job", 2000))
	require.NoError(t, cat.MarkFinished("job", 7.0))
	job, _ = cat.Details("job")
	assert.Equal(t, int64(2), job.NbrRuns)
	assert.InDelta(t, 6.0, job.AvgRuntime, 1e-9)
}

func TestPendingStartLifecycle(t *testing.T) {
	cat, _ := newCatalog()
	def := catalog.Definition{Program: []string{"/bin/true"}}
	require.NoError(t, cat.Create("job", def))

	require.NoError(t, cat.IncrementPending("job"))
	require.NoError(t, cat.IncrementPending("job"))
	job, _ := cat.Details("job")
	assert.Equal(t, int64(2), job.PendingStart)

	require.NoError(t, cat.DecrementPending("job"))
	job, _ = cat.Details("job")
	assert.Equal(t, int64(1), job.PendingStart)

	require.NoError(t, cat.ClearPending("job"))
	job, _ = cat.Details("job")
	assert.Equal(t, int64(0), job.PendingStart)
}

func TestUnknownJobOperationsReturnJobNameUnknown(t *testing.T) {
	cat, _ := newCatalog()

	_, err := cat.Details("missing")
	code, _, ok := kerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, kerrors.JobNameUnknown, code)

	err = cat.Edit("missing", catalog.Definition{Program: []string{"/bin/true"}})
	code, _, _ = kerrors.As(err)
	assert.Equal(t, kerrors.JobNameUnknown, code)

	err = cat.Delete("missing")
	code, _, _ = kerrors.As(err)
	assert.Equal(t, kerrors.JobNameUnknown, code)
}
