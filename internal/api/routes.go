package api

import (
	"github.com/TheGojiOG/tw404-manager/internal/api/handlers"
	"github.com/TheGojiOG/tw404-manager/internal/api/middleware"
	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/websocket"
	"github.com/gin-gonic/gin"
)

// AdminDeps are the components behind the operator API
type AdminDeps struct {
	Lifecycle      handlers.Lifecycle
	Logs           handlers.LogSource
	Access         handlers.AccessControl
	ActivityLogger *logging.ActivityLogger
	Hub            *websocket.Hub

	// State and Snapshots are optional
	State     handlers.StateReader
	Snapshots handlers.SnapshotSource
}

// PublicDeps are the components behind the public account API
type PublicDeps struct {
	Accounts       handlers.AccountCreator
	Health         handlers.HealthProbe
	ActivityLogger *logging.ActivityLogger
}

// SetupAdminRouter configures the operator API
func SetupAdminRouter(cfg *config.Config, deps AdminDeps) *gin.Engine {
	router := newRouter(cfg, "admin", cfg.Server.Admin.TLS.Enabled)

	admin := handlers.NewAdminHandler(deps.Lifecycle, deps.Logs, deps.Access, deps.ActivityLogger)

	api := router.Group("/api/admin")
	{
		api.GET("/status", admin.GetStatus)
		api.POST("/start", admin.Start)
		api.POST("/stop", admin.Stop)
		api.POST("/restart", admin.Restart)

		api.GET("/logs/:server", admin.GetLogs)
		api.GET("/logs/:server/download", admin.DownloadLog)

		api.POST("/set-gm", admin.SetGM)
		api.POST("/ban-ip", admin.BanIP)
		api.GET("/ban-list", admin.GetBanList)

		api.GET("/activity", admin.GetActivity)
	}

	var watchers handlers.WatcherCounter
	if deps.Hub != nil {
		watchers = deps.Hub
	}
	history := handlers.NewHistoryHandler(deps.State, deps.Snapshots, watchers, websocket.StatusRoom)
	api.GET("/status/latest", history.GetLatestStatus)
	if deps.State != nil {
		api.GET("/status/history", history.GetStatusHistory)
		api.GET("/accounts/attempts", history.GetProvisioningAttempts)
	}

	if deps.Hub != nil {
		stream := handlers.NewStatusStreamHandler(deps.Hub, cfg.Security.CORS.AllowedOrigins)
		api.GET("/ws/status", stream.HandleStatusWebSocket)
	}

	router.GET("/health", handlers.Liveness)
	return router
}

// SetupPublicRouter configures the public account API
func SetupPublicRouter(cfg *config.Config, deps PublicDeps) *gin.Engine {
	router := newRouter(cfg, "public", cfg.Server.Public.TLS.Enabled)

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.ActivityLogger)
	healthHandler := handlers.NewHealthHandler(deps.Health)

	api := router.Group("/api")
	{
		api.GET("/health", healthHandler.RemoteHealth)
		api.POST("/create-account", accountHandler.CreateAccount)
	}

	router.GET("/health", handlers.Liveness)
	return router
}

func newRouter(cfg *config.Config, listener string, tlsEnabled bool) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(listener))
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders(tlsEnabled))
	return router
}
