package catalog

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/cronmatch"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// Persister is the subset of the persistence store the catalog needs:
// a single blocking write-behind call per mutation. Catalog does not
// depend on the persistence package directly to avoid an import cycle
// with catalog.Job; internal/persistence.Store satisfies this
// interface structurally.
type Persister interface {
	SaveCatalog(path string, jobs map[string]*Job) error
}

// Catalog is the in-memory authoritative job set. All mutations
// serialize on a single writer lock; readers take a read lock and
// copy out, per the single-writer discipline in the concurrency model.
type Catalog struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	store      Persister
	catalogPth string
	logger     zerolog.Logger
}

// New creates a Catalog seeded with the given jobs (typically loaded
// from persistence at boot) that flushes to store/path on every
// mutation.
func New(jobs map[string]*Job, store Persister, catalogPath string, logger zerolog.Logger) *Catalog {
	if jobs == nil {
		jobs = make(map[string]*Job)
	}
	return &Catalog{
		jobs:       jobs,
		store:      store,
		catalogPth: catalogPath,
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// List returns all job names, in undefined but stable (sorted) order.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namesLocked(func(*Job) bool { return true })
}

// Scheduled returns the names of jobs whose schedule is non-empty,
// per invariant J7.
func (c *Catalog) Scheduled() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namesLocked(func(j *Job) bool { return j.IsScheduled() })
}

func (c *Catalog) namesLocked(pred func(*Job) bool) []string {
	names := make([]string, 0, len(c.jobs))
	for name, j := range c.jobs {
		if pred(j) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Details returns a copy of the named job's full record.
func (c *Catalog) Details(name string) (*Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	j, ok := c.jobs[name]
	if !ok {
		return nil, kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	return j.Clone(), nil
}

// Create adds a new job definition. Statistics fields are always
// initialized to zero regardless of what the caller supplies.
func (c *Catalog) Create(name string, def Definition) error {
	if !validJobName(name) {
		return kerrors.New(kerrors.JobDescriptionInvalid, "invalid job name: "+name)
	}
	if !def.Valid() {
		return kerrors.New(kerrors.JobDescriptionInvalid, "job description invalid: "+name)
	}
	if def.Schedule != "" && !cronmatch.Validate(def.Schedule) {
		return kerrors.New(kerrors.JobScheduleInvalid, "invalid schedule: "+def.Schedule)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.jobs[name]; exists {
		return kerrors.New(kerrors.JobNameTaken, "job already exists: "+name)
	}

	c.jobs[name] = &Job{
		Name:       name,
		Program:    append([]string(nil), def.Program...),
		Schedule:   def.Schedule,
		MaxRuntime: def.MaxRuntime,
		Status:     StatusStopped,
	}

	c.persistLocked()
	return nil
}

// Edit overwrites program/schedule/max-runtime for an existing,
// stopped job. Statistics are preserved.
func (c *Catalog) Edit(name string, def Definition) error {
	if !validJobName(name) {
		return kerrors.New(kerrors.JobDescriptionInvalid, "invalid job name: "+name)
	}
	if !def.Valid() {
		return kerrors.New(kerrors.JobDescriptionInvalid, "job description invalid: "+name)
	}
	if def.Schedule != "" && !cronmatch.Validate(def.Schedule) {
		return kerrors.New(kerrors.JobScheduleInvalid, "invalid schedule: "+def.Schedule)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	if j.IsRunning() {
		return kerrors.New(kerrors.JobIsRunning, "job is running: "+name)
	}

	j.Program = append([]string(nil), def.Program...)
	j.Schedule = def.Schedule
	j.MaxRuntime = def.MaxRuntime

	c.persistLocked()
	return nil
}

// Delete removes a stopped job from the catalog.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	if j.IsRunning() {
		return kerrors.New(kerrors.JobIsRunning, "job is running: "+name)
	}

	delete(c.jobs, name)
	c.persistLocked()
	return nil
}

// MarkStarted transitions a job to running at the given epoch-seconds
// start time, satisfying invariant J1.
func (c *Catalog) MarkStarted(name string, startTime int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}

	j.Status = StatusRunning
	j.StartTime = startTime

	c.persistLocked()
	return nil
}

// MarkFinished records a completed run: increments nbr-runs, updates
// the Welford running moments for avg/var-runtime (J5), and clears
// running state (J1, J4).
func (c *Catalog) MarkFinished(name string, durationSeconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}

	j.NbrRuns++
	delta := durationSeconds - j.AvgRuntime
	j.AvgRuntime += delta / float64(j.NbrRuns)
	delta2 := durationSeconds - j.AvgRuntime
	j.VarRuntime += delta * delta2

	j.Status = StatusStopped
	j.StartTime = 0

	c.persistLocked()
	return nil
}

// IncrementPending bumps pending-start by one, for a start() request
// that arrives while the job is already running (J3).
func (c *Catalog) IncrementPending(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	j.PendingStart++
	c.persistLocked()
	return nil
}

// DecrementPending reduces pending-start by one (floored at zero),
// used by the completion handler when launching a queued run.
func (c *Catalog) DecrementPending(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	if j.PendingStart > 0 {
		j.PendingStart--
	}
	c.persistLocked()
	return nil
}

// ClearPending resets pending-start to zero.
func (c *Catalog) ClearPending(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[name]
	if !ok {
		return kerrors.New(kerrors.JobNameUnknown, "job not found: "+name)
	}
	j.PendingStart = 0
	c.persistLocked()
	return nil
}

func (c *Catalog) persistLocked() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveCatalog(c.catalogPth, c.jobs); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist catalog")
	}
}
