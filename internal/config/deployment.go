package config

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Process roles
const (
	RoleDatabase = "database"
	RoleWorker   = "worker"
)

// DeploymentConfig describes the remote deployment layout
type DeploymentConfig struct {
	Root         string              `yaml:"root" json:"root"`
	BanFile      string              `yaml:"ban_file" json:"ban_file"`
	LogTailLines int                 `yaml:"log_tail_lines" json:"log_tail_lines"`
	MaxTailLines int                 `yaml:"max_tail_lines" json:"max_tail_lines"`
	Settle       SettleConfig        `yaml:"settle" json:"settle"`
	Processes    []ProcessDefinition `yaml:"processes" json:"processes"`
}

// SettleConfig holds the pauses between lifecycle steps
type SettleConfig struct {
	AfterKill     time.Duration `yaml:"after_kill" json:"after_kill"`
	AfterDatabase time.Duration `yaml:"after_database" json:"after_database"`
	BeforeRestart time.Duration `yaml:"before_restart" json:"before_restart"`
}

// ProcessDefinition represents one managed process on the remote host
type ProcessDefinition struct {
	Name              string `yaml:"name" json:"name"`
	Role              string `yaml:"role" json:"role"`
	WorkingDirectory  string `yaml:"working_directory" json:"working_directory"`
	StartCommand      string `yaml:"start_command" json:"start_command"`
	LogPath           string `yaml:"log_path" json:"log_path"`
	ProbePattern      string `yaml:"probe_pattern" json:"probe_pattern"`
	KillPattern       string `yaml:"kill_pattern" json:"kill_pattern"`
	ConsoleConfigPath string `yaml:"console_config_path,omitempty" json:"console_config_path,omitempty"`
}

// DefaultDeployment returns the stock roster: one database and three workers
// sharing the jtales0 directory.
func DefaultDeployment() DeploymentConfig {
	root := "/tw404"
	workerDir := path.Join(root, "jtales0")

	processes := []ProcessDefinition{{
		Name:             "db",
		Role:             RoleDatabase,
		WorkingDirectory: path.Join(root, "db"),
		StartCommand:     "nohup ./db -d 12 > db.log 2>&1 &",
		LogPath:          path.Join(root, "db", "db.log"),
		ProbePattern:     "db -d 12",
		KillPattern:      "db",
	}}

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("jtales%d", i)
		processes = append(processes, ProcessDefinition{
			Name:              name,
			Role:              RoleWorker,
			WorkingDirectory:  workerDir,
			StartCommand:      fmt.Sprintf("nohup ./start%d > logs/%s.log 2>&1 &", i, name),
			LogPath:           path.Join(workerDir, "logs", name+".log"),
			ProbePattern:      name,
			KillPattern:       "jtales",
			ConsoleConfigPath: path.Join(workerDir, "console.conf"),
		})
	}

	return DeploymentConfig{
		Root:         root,
		BanFile:      path.Join(workerDir, "banip.conf"),
		LogTailLines: 200,
		MaxTailLines: 5000,
		Settle: SettleConfig{
			AfterKill:     time.Second,
			AfterDatabase: 2 * time.Second,
			BeforeRestart: 2 * time.Second,
		},
		Processes: processes,
	}
}

// Database returns the database process definition
func (d DeploymentConfig) Database() (ProcessDefinition, bool) {
	for _, p := range d.Processes {
		if p.Role == RoleDatabase {
			return p, true
		}
	}
	return ProcessDefinition{}, false
}

// Workers returns the worker definitions in roster order
func (d DeploymentConfig) Workers() []ProcessDefinition {
	var workers []ProcessDefinition
	for _, p := range d.Processes {
		if p.Role == RoleWorker {
			workers = append(workers, p)
		}
	}
	return workers
}

// Validate checks the roster for the invariants the supervisor relies on
func (d DeploymentConfig) Validate() error {
	if !path.IsAbs(d.Root) {
		return fmt.Errorf("deployment root must be an absolute path: %q", d.Root)
	}
	if strings.TrimSpace(d.BanFile) == "" {
		return fmt.Errorf("deployment ban_file is required")
	}
	if d.LogTailLines <= 0 || d.MaxTailLines < d.LogTailLines {
		return fmt.Errorf("log_tail_lines must be positive and not exceed max_tail_lines")
	}
	if d.Settle.AfterKill < 0 || d.Settle.AfterDatabase < 0 || d.Settle.BeforeRestart < 0 {
		return fmt.Errorf("settle delays cannot be negative")
	}

	seen := make(map[string]bool, len(d.Processes))
	databases := 0
	for _, p := range d.Processes {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("process name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate process name: %s", p.Name)
		}
		seen[p.Name] = true

		switch p.Role {
		case RoleDatabase:
			databases++
		case RoleWorker:
			if strings.TrimSpace(p.ConsoleConfigPath) == "" {
				return fmt.Errorf("worker %s requires console_config_path", p.Name)
			}
		default:
			return fmt.Errorf("process %s has unsupported role %q", p.Name, p.Role)
		}

		if p.WorkingDirectory == "" || p.StartCommand == "" || p.LogPath == "" {
			return fmt.Errorf("process %s requires working_directory, start_command and log_path", p.Name)
		}
		if p.ProbePattern == "" || p.KillPattern == "" {
			return fmt.Errorf("process %s requires probe_pattern and kill_pattern", p.Name)
		}
	}

	if databases != 1 {
		return fmt.Errorf("roster must contain exactly one database process, found %d", databases)
	}
	if len(d.Workers()) == 0 {
		return fmt.Errorf("roster must contain at least one worker process")
	}

	return nil
}
