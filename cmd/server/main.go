package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/api"
	"github.com/TheGojiOG/tw404-manager/internal/api/handlers"
	"github.com/TheGojiOG/tw404-manager/internal/app"
	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/database"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/monitor"
	"github.com/TheGojiOG/tw404-manager/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	components, err := app.New(cfg, app.Options{State: true})
	if err != nil {
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	go hub.Run(ctx)

	var snapshots handlers.SnapshotSource
	if cfg.Monitor.Enabled {
		mon, err := monitor.New(components.Supervisor, components.DB, components.Activity, hub, cfg.Monitor)
		if err != nil {
			log.Fatalf("Failed to initialize roster monitor: %v", err)
		}
		mon.Start(ctx)
		snapshots = mon
		log.Printf("Roster monitor scheduled (%s)", cfg.Monitor.Schedule)
	}

	var servers []*http.Server
	if cfg.Server.Admin.Enabled {
		router := api.SetupAdminRouter(cfg, api.AdminDeps{
			Lifecycle:      components.Supervisor,
			Logs:           components.Logs,
			Access:         components.Access,
			ActivityLogger: components.Activity,
			Hub:            hub,
			State:          components.DB,
			Snapshots:      snapshots,
		})
		servers = append(servers, serve("admin", cfg.Server.Admin, router))
	}
	if cfg.Server.Public.Enabled {
		router := api.SetupPublicRouter(cfg, api.PublicDeps{
			Accounts:       components.Provisioner,
			Health:         components.Health,
			ActivityLogger: components.Activity,
		})
		servers = append(servers, serve("public", cfg.Server.Public, router))
	}
	if len(servers) == 0 {
		log.Fatalf("No listener enabled")
	}

	log.Println("All components initialized successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	// lifecycle requests run synchronously, so give a restart time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Listener %s forced to shutdown: %v", srv.Addr, err)
			}
		}(srv)
	}
	wg.Wait()

	log.Println("Server exited")
}

// serve starts one listener. There is no write timeout: a restart or an
// account creation spans several remote round trips, each bounded on its own.
func serve(name string, listener config.ListenerConfig, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              listener.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Starting %s listener on %s", name, srv.Addr)

		var err error
		if listener.TLS.Enabled {
			err = srv.ListenAndServeTLS(listener.TLS.CertFile, listener.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start %s listener: %v", name, err)
		}
	}()
	return srv
}

func setupLogging(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "server.log")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
		return err
	}
	_, err := logging.Init(cfg.Logging)
	return err
}

func runMigrations(cfg *config.Config) {
	log.Println("Running database migrations...")

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}
