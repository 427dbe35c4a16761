package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"golang.org/x/sync/errgroup"
)

// Lifecycle operations
const (
	OperationStart   = "start"
	OperationStop    = "stop"
	OperationRestart = "restart"
)

// Status is one liveness snapshot of the roster
type Status struct {
	Processes map[string]bool `json:"processes"`
	CheckedAt time.Time       `json:"checked_at"`
}

// AllRunning reports whether every process is up
func (s Status) AllRunning() bool {
	for _, running := range s.Processes {
		if !running {
			return false
		}
	}
	return len(s.Processes) > 0
}

// StepOutcome records one remote command in a lifecycle sequence
type StepOutcome struct {
	Step      string `json:"step"`
	Process   string `json:"process,omitempty"`
	Succeeded bool   `json:"succeeded"`
	ExitCode  int    `json:"exit_code"`
	Detail    string `json:"detail,omitempty"`
}

// Report describes a start, stop or restart
type Report struct {
	Operation  string        `json:"operation"`
	Succeeded  bool          `json:"succeeded"`
	Steps      []StepOutcome `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Failures maps each failed launch to its diagnostic
func (r Report) Failures() map[string]string {
	failures := make(map[string]string)
	for _, s := range r.Steps {
		if !s.Succeeded {
			failures[s.Process] = s.Detail
		}
	}
	return failures
}

// Supervisor starts, stops and probes the roster. Lifecycle operations are
// serialised; probes are not.
type Supervisor struct {
	executor       remote.Executor
	roster         *Roster
	probe          LivenessProbe
	settle         config.SettleConfig
	commandTimeout time.Duration

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time

	lifecycleMu sync.Mutex
}

// NewSupervisor creates a supervisor using pgrep for liveness
func NewSupervisor(executor remote.Executor, roster *Roster, settle config.SettleConfig, commandTimeout time.Duration) *Supervisor {
	return &Supervisor{
		executor:       executor,
		roster:         roster,
		probe:          &PgrepProbe{Executor: executor, Timeout: commandTimeout},
		settle:         settle,
		commandTimeout: commandTimeout,
		sleep:          sleepContext,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetProbe replaces the liveness probe
func (s *Supervisor) SetProbe(probe LivenessProbe) {
	s.probe = probe
}

// Probe checks every process concurrently. A failed probe marks only its own
// process as down.
func (s *Supervisor) Probe(ctx context.Context) Status {
	processes := s.roster.All()
	results := make([]bool, len(processes))

	var g errgroup.Group
	for i, p := range processes {
		g.Go(func() error {
			results[i] = s.probe.Probe(ctx, p)
			return nil
		})
	}
	g.Wait()

	status := Status{Processes: make(map[string]bool, len(processes)), CheckedAt: s.now()}
	for i, p := range processes {
		status.Processes[p.Name] = results[i]
	}
	return status
}

// Start kills anything left over, then launches the database followed by
// every worker. A failed step is recorded and the sequence continues.
func (s *Supervisor) Start(ctx context.Context) Report {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	report := Report{Operation: OperationStart, StartedAt: s.now()}
	s.start(ctx, &report)
	return s.finish(report)
}

// Stop force-kills every process family. Killing nothing is still a success.
func (s *Supervisor) Stop(ctx context.Context) Report {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	report := Report{Operation: OperationStop, StartedAt: s.now()}
	s.killAll(ctx, &report)
	report.FinishedAt = s.now()
	report.Succeeded = true
	log.Printf("[Supervisor] Stop complete")
	return report
}

// Restart stops the roster, waits, then runs the full start sequence
func (s *Supervisor) Restart(ctx context.Context) Report {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	report := Report{Operation: OperationRestart, StartedAt: s.now()}
	s.killAll(ctx, &report)
	s.sleep(ctx, s.settle.BeforeRestart)
	s.start(ctx, &report)
	return s.finish(report)
}

func (s *Supervisor) start(ctx context.Context, report *Report) {
	s.killAll(ctx, report)
	s.sleep(ctx, s.settle.AfterKill)

	s.launch(ctx, report, s.roster.Database())
	s.sleep(ctx, s.settle.AfterDatabase)

	for _, worker := range s.roster.Workers() {
		s.launch(ctx, report, worker)
	}
}

func (s *Supervisor) killAll(ctx context.Context, report *Report) {
	res := s.executor.Execute(ctx, remote.Run(s.roster.KillAllLine(), s.commandTimeout))
	if !res.Succeeded {
		logging.Component("supervisor").Warn("kill_all_failed",
			"exit_code", res.ExitCode,
			"output", res.Combined(),
		)
	}
	report.Steps = append(report.Steps, StepOutcome{
		Step:      "kill",
		Succeeded: true,
		ExitCode:  res.ExitCode,
		Detail:    res.Combined(),
	})
}

func (s *Supervisor) launch(ctx context.Context, report *Report, p ManagedProcess) {
	log.Printf("[Supervisor] Launching %s", p.Name)
	res := s.executor.Execute(ctx, remote.Run(p.LaunchLine(), s.commandTimeout))

	step := StepOutcome{
		Step:      "launch",
		Process:   p.Name,
		Succeeded: res.Succeeded,
		ExitCode:  res.ExitCode,
		Detail:    res.Combined(),
	}
	if !res.Succeeded {
		if step.Detail == "" {
			step.Detail = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		logging.Component("supervisor").Error("process_launch_failed",
			"process", p.Name,
			"exit_code", res.ExitCode,
			"timed_out", res.TimedOut,
			"output", step.Detail,
		)
	}
	report.Steps = append(report.Steps, step)
}

func (s *Supervisor) finish(report Report) Report {
	report.FinishedAt = s.now()
	report.Succeeded = true
	for _, step := range report.Steps {
		if step.Step == "launch" && !step.Succeeded {
			report.Succeeded = false
		}
	}
	log.Printf("[Supervisor] %s complete (succeeded: %v)", report.Operation, report.Succeeded)
	return report
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
