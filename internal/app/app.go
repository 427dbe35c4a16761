package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/TheGojiOG/tw404-manager/internal/access"
	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/database"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/TheGojiOG/tw404-manager/internal/server"
	"github.com/TheGojiOG/tw404-manager/internal/ssh"
)

// App holds the components shared by the service and the CLI
type App struct {
	Config      *config.Config
	Executor    remote.Executor
	Roster      *server.Roster
	Supervisor  *server.Supervisor
	Logs        *server.LogReader
	Health      *server.HealthChecker
	Resolver    *accounts.Resolver
	Provisioner *accounts.Provisioner
	Access      *access.Manager

	// DB and Activity are nil unless state was requested
	DB       *database.DB
	Activity *logging.ActivityLogger

	closers []io.Closer
}

// Options selects optional parts of the wiring
type Options struct {
	// State opens the local database and activity log
	State bool
}

// New wires every component from configuration
func New(cfg *config.Config, opts Options) (*App, error) {
	executor, err := ssh.NewExecutor(cfg.Remote, cfg.Security.SSH)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote executor: %w", err)
	}

	// health checks use their own, shorter connection bound
	healthRemote := cfg.Remote
	healthRemote.ConnectTimeout = cfg.Remote.HealthConnectTimeout
	healthExecutor, err := ssh.NewExecutor(healthRemote, cfg.Security.SSH)
	if err != nil {
		closeIfCloser(executor)
		return nil, fmt.Errorf("failed to create health executor: %w", err)
	}

	return Assemble(cfg, executor, healthExecutor, opts)
}

// Assemble wires the components around existing executors. The App takes
// ownership of both executors.
func Assemble(cfg *config.Config, executor, healthExecutor remote.Executor, opts Options) (*App, error) {
	a := &App{Config: cfg, Executor: executor}
	a.track(executor)
	a.track(healthExecutor)

	roster, err := server.NewRoster(cfg.Deployment)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Roster = roster

	if opts.State {
		if err := a.openState(); err != nil {
			a.Close()
			return nil, err
		}
	}

	var opener server.FileOpener
	if o, ok := executor.(server.FileOpener); ok {
		opener = o
	}

	remoteCfg := cfg.Remote
	a.Supervisor = server.NewSupervisor(executor, roster, cfg.Deployment.Settle, remoteCfg.CommandTimeout)
	a.Logs = server.NewLogReader(executor, opener, roster, cfg.Deployment.LogTailLines, cfg.Deployment.MaxTailLines, remoteCfg.CommandTimeout)
	a.Health = server.NewHealthChecker(healthExecutor, cfg.Deployment.Root, remoteCfg.HealthTimeout)
	a.Resolver = accounts.NewResolver(executor, cfg.Accounts, cfg.Deployment.Root, remoteCfg.CommandTimeout)

	var recorder accounts.AttemptRecorder
	if a.DB != nil {
		recorder = a.DB
	}
	a.Provisioner = accounts.NewProvisioner(executor, a.Resolver, cfg.Accounts, remoteCfg.Shell, remoteCfg.ScriptTimeout, recorder)
	a.Access = access.NewManager(executor, a.Resolver, roster, access.Options{
		BanFile:        cfg.Deployment.BanFile,
		Shell:          remoteCfg.Shell,
		CommandTimeout: remoteCfg.CommandTimeout,
		ScriptTimeout:  remoteCfg.ScriptTimeout,
	})

	log.Printf("[App] Remote %s via %s transport, %d managed processes", cfg.Remote.Host, transportName(cfg.Remote.Transport), len(roster.All()))
	return a, nil
}

func (a *App) openState() error {
	db, err := database.NewDB(a.Config.Database.Path, a.Config.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.track(db)

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	activity, err := logging.NewActivityLogger(db.DB, filepath.Join(a.Config.Storage.DataDir, "logs", "activity"))
	if err != nil {
		return fmt.Errorf("failed to initialize activity logger: %w", err)
	}
	a.Activity = activity
	a.track(activity)
	return nil
}

func closeIfCloser(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

func (a *App) track(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Close releases connections and files in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func transportName(t string) string {
	if t == "" {
		return config.TransportOpenSSH
	}
	return t
}
