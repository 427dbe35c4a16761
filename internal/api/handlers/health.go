package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports remote connectivity
type HealthHandler struct {
	probe HealthProbe
}

// NewHealthHandler creates the health handler
func NewHealthHandler(probe HealthProbe) *HealthHandler {
	return &HealthHandler{probe: probe}
}

// RemoteHealth checks that the deployment root is reachable over ssh. The
// endpoint always answers 200; the body carries the verdict.
func (h *HealthHandler) RemoteHealth(c *gin.Context) {
	connected := h.probe.Check(c.Request.Context())

	status := "ok"
	if !connected {
		status = "offline"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"solaris_connected": connected,
	})
}

// Liveness answers for the service process itself
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
