package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// ErrUnknownProcess is returned for names that are not in the roster
var ErrUnknownProcess = errors.New("unknown process")

// ManagedProcess is one long-running program on the remote host
type ManagedProcess struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	StartCommand      string `json:"start_command"`
	WorkingDirectory  string `json:"working_directory"`
	LogPath           string `json:"log_path"`
	ProbePattern      string `json:"probe_pattern"`
	KillPattern       string `json:"kill_pattern"`
	ConsoleConfigPath string `json:"console_config_path,omitempty"`
}

// LaunchLine is the shell text that starts the process from its directory.
// StartCommand comes from operator configuration and is not escaped.
func (p ManagedProcess) LaunchLine() string {
	return "cd " + remote.Quote(p.WorkingDirectory) + " && " + p.StartCommand
}

// Roster is the fixed, ordered set of managed processes
type Roster struct {
	processes []ManagedProcess
	byName    map[string]int
}

// NewRoster builds a roster from validated deployment configuration
func NewRoster(deployment config.DeploymentConfig) (*Roster, error) {
	if err := deployment.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}

	r := &Roster{byName: make(map[string]int, len(deployment.Processes))}
	for _, def := range deployment.Processes {
		r.byName[def.Name] = len(r.processes)
		r.processes = append(r.processes, ManagedProcess{
			Name:              def.Name,
			Role:              def.Role,
			StartCommand:      def.StartCommand,
			WorkingDirectory:  def.WorkingDirectory,
			LogPath:           def.LogPath,
			ProbePattern:      def.ProbePattern,
			KillPattern:       def.KillPattern,
			ConsoleConfigPath: def.ConsoleConfigPath,
		})
	}
	return r, nil
}

// All returns every process in roster order
func (r *Roster) All() []ManagedProcess {
	return append([]ManagedProcess(nil), r.processes...)
}

// Names returns the process names in roster order
func (r *Roster) Names() []string {
	names := make([]string, len(r.processes))
	for i, p := range r.processes {
		names[i] = p.Name
	}
	return names
}

// Lookup finds a process by name
func (r *Roster) Lookup(name string) (ManagedProcess, error) {
	idx, ok := r.byName[name]
	if !ok {
		return ManagedProcess{}, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	return r.processes[idx], nil
}

// Database returns the database process
func (r *Roster) Database() ManagedProcess {
	for _, p := range r.processes {
		if p.Role == config.RoleDatabase {
			return p
		}
	}
	return ManagedProcess{}
}

// Workers returns the worker processes in roster order
func (r *Roster) Workers() []ManagedProcess {
	var workers []ManagedProcess
	for _, p := range r.processes {
		if p.Role == config.RoleWorker {
			workers = append(workers, p)
		}
	}
	return workers
}

// KillAllLine force-kills every process family. Each distinct kill pattern is
// signalled once; a pattern with no match is not an error.
func (r *Roster) KillAllLine() string {
	seen := make(map[string]bool)
	var parts []string
	for _, p := range r.processes {
		if seen[p.KillPattern] {
			continue
		}
		seen[p.KillPattern] = true
		parts = append(parts, "pkill -9 "+remote.Quote(p.KillPattern))
	}
	return strings.Join(parts, "; ") + "; true"
}
