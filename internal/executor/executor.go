// Package executor owns every running child process: it enforces
// single-instance execution with a pending-start queue, per-job
// runtime caps via a watchdog sweep, and statistics bookkeeping
// through the catalog. Mutual exclusion lives here, in the start
// path, rather than in the REST handler — two concurrent start
// requests for the same job must be serialized before either one
// touches the catalog.
package executor

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwibes/kiwibesd/internal/catalog"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

// gracePeriod is how long a SIGTERM'd (or equivalent) child is given
// to exit cleanly before the executor escalates to a hard kill.
const gracePeriod = 3 * time.Second

// runtimeState is the executor-owned bookkeeping for one job; it is
// never touched by the Catalog, which only owns definition fields.
type runtimeState struct {
	mu      sync.Mutex // serializes start/stop for this one job
	cmd     *exec.Cmd
	started time.Time
	exited  chan struct{} // closed by reap once cmd.Wait() returns
}

// Executor spawns, tracks, and reaps child processes on behalf of the
// catalog's job definitions.
type Executor struct {
	catalog *catalog.Catalog
	logger  zerolog.Logger

	statesMu sync.Mutex
	states   map[string]*runtimeState
}

// New creates an Executor bound to the given catalog.
func New(cat *catalog.Catalog, logger zerolog.Logger) *Executor {
	return &Executor{
		catalog: cat,
		logger:  logger.With().Str("component", "executor").Logger(),
		states:  make(map[string]*runtimeState),
	}
}

func (e *Executor) stateFor(name string) *runtimeState {
	e.statesMu.Lock()
	defer e.statesMu.Unlock()

	st, ok := e.states[name]
	if !ok {
		st = &runtimeState{}
		e.states[name] = st
	}
	return st
}

// Start launches name, or queues a pending start if it is already
// running. Spawn failures return kerrors.ProcessLaunchFailed and leave
// catalog state untouched.
func (e *Executor) Start(name string) error {
	job, err := e.catalog.Details(name)
	if err != nil {
		return err
	}

	st := e.stateFor(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-read under the per-job lock: another goroutine may have
	// started or finished the job between Details() above and here.
	job, err = e.catalog.Details(name)
	if err != nil {
		return err
	}

	if job.IsRunning() {
		return e.catalog.IncrementPending(name)
	}

	cmd := buildCommand(job.Program)
	if err := cmd.Start(); err != nil {
		e.logger.Error().Err(err).Str("job", name).Msg("failed to launch process")
		return kerrors.New(kerrors.ProcessLaunchFailed, err.Error())
	}

	now := time.Now()
	st.cmd = cmd
	st.started = now
	st.exited = make(chan struct{})

	if err := e.catalog.MarkStarted(name, now.Unix()); err != nil {
		return err
	}

	e.logger.Info().Str("job", name).Int("pid", cmd.Process.Pid).Msg("job started")

	go e.reap(name, job.MaxRuntime)

	return nil
}

// Stop terminates a running job: SIGTERM (unix) or equivalent process
// termination (windows), escalating to a hard kill after gracePeriod
// if the child has not exited. The completion handler (driven by the
// reaper goroutine started in Start) is responsible for recording
// statistics; Stop itself does not touch nbr-runs or pending-start.
func (e *Executor) Stop(name string) error {
	job, err := e.catalog.Details(name)
	if err != nil {
		return err
	}

	st := e.stateFor(name)
	st.mu.Lock()
	cmd := st.cmd
	exited := st.exited
	st.mu.Unlock()

	if !job.IsRunning() || cmd == nil || cmd.Process == nil {
		return kerrors.New(kerrors.JobIsNotRunning, "job is not running: "+name)
	}

	terminate(cmd, exited)
	return nil
}

// ClearPending resets the queued-launch counter to zero without
// affecting the job's current run, per the explicit-only drain policy
// decided in the design notes.
func (e *Executor) ClearPending(name string) error {
	return e.catalog.ClearPending(name)
}

// reap waits for the child to exit, then runs the completion handler:
// compute duration, update Welford moments, increment nbr-runs, clear
// running state, persist, and launch a queued run if one is pending.
// maxRuntime is not consulted here: runtime caps are enforced by
// SweepWatchdog, which calls Stop; reap observes that exit through
// its own cmd.Wait() like any other, and Stop waits on the exited
// channel rather than calling Wait itself.
func (e *Executor) reap(name string, maxRuntime int64) {
	st := e.stateFor(name)
	st.mu.Lock()
	cmd := st.cmd
	started := st.started
	exited := st.exited
	st.mu.Unlock()

	if cmd == nil {
		return
	}

	_ = cmd.Wait() // exit status is not tracked; see state-machine note
	close(exited)  // signal terminate(), which must not read cmd.ProcessState itself
	duration := time.Since(started).Seconds()

	st.mu.Lock()
	st.cmd = nil
	st.exited = nil
	st.mu.Unlock()

	if err := e.catalog.MarkFinished(name, duration); err != nil {
		e.logger.Error().Err(err).Str("job", name).Msg("failed to record completion")
		return
	}

	e.logger.Info().Str("job", name).Float64("duration", duration).Msg("job finished")

	job, err := e.catalog.Details(name)
	if err != nil {
		return
	}

	if job.PendingStart > 0 {
		if err := e.catalog.DecrementPending(name); err != nil {
			e.logger.Error().Err(err).Str("job", name).Msg("failed to decrement pending-start")
			return
		}
		// Depth-1 only: this single recursive Start corresponds to
		// exactly one queued launch request; any further queueing is
		// driven by a fresh Start call, not by this goroutine looping.
		if err := e.Start(name); err != nil {
			e.logger.Error().Err(err).Str("job", name).Msg("failed to launch queued run")
		}
	}
}

// SweepWatchdog terminates every running job whose max-runtime has
// elapsed. It is called once per scheduler tick.
func (e *Executor) SweepWatchdog() {
	now := time.Now().Unix()

	for _, name := range e.catalog.List() {
		job, err := e.catalog.Details(name)
		if err != nil || !job.IsRunning() || job.MaxRuntime <= 0 {
			continue
		}
		if now >= job.StartTime+job.MaxRuntime {
			e.logger.Warn().Str("job", name).Msg("max-runtime exceeded, terminating")
			if err := e.Stop(name); err != nil {
				e.logger.Error().Err(err).Str("job", name).Msg("watchdog failed to stop job")
			}
		}
	}
}

// Shutdown terminates every currently running child, for use during
// graceful server shutdown.
func (e *Executor) Shutdown(ctx context.Context) {
	e.statesMu.Lock()
	names := make([]string, 0, len(e.states))
	for name := range e.states {
		names = append(names, name)
	}
	e.statesMu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		job, err := e.catalog.Details(name)
		if err != nil || !job.IsRunning() {
			continue
		}
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_ = e.Stop(n)
		}(name)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn().Msg("shutdown deadline exceeded while waiting for children to exit")
	}
}

func buildCommand(program []string) *exec.Cmd {
	cmd := exec.Command(program[0], program[1:]...)
	return cmd
}

// terminate sends the OS-appropriate graceful signal, then escalates
// to a hard kill if the process has not exited within gracePeriod.
// exited is the channel reap() closes after cmd.Wait() returns; only
// reap's goroutine ever calls Wait or reads cmd.ProcessState, so
// terminate must not poll either itself.
func terminate(cmd *exec.Cmd, exited <-chan struct{}) {
	sendGraceful(cmd)

	timer := time.NewTimer(gracePeriod)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		_ = cmd.Process.Kill()
	}
}

// sendGraceful issues the platform-appropriate "please exit" signal.
// Actual signal delivery is an OS primitive and varies by build tag;
// this indirection keeps Stop/SweepWatchdog platform-agnostic.
var sendGraceful = func(cmd *exec.Cmd) {
	if runtime.GOOS == "windows" {
		_ = cmd.Process.Kill()
		return
	}
	_ = cmd.Process.Signal(terminateSignal())
}
