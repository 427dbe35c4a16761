package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"

	"github.com/TheGojiOG/tw404-manager/internal/access"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/server"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the operator API
type AdminHandler struct {
	lifecycle      Lifecycle
	logs           LogSource
	access         AccessControl
	activityLogger *logging.ActivityLogger
}

// NewAdminHandler creates the admin handler. activityLogger may be nil.
func NewAdminHandler(lifecycle Lifecycle, logs LogSource, acl AccessControl, activityLogger *logging.ActivityLogger) *AdminHandler {
	return &AdminHandler{
		lifecycle:      lifecycle,
		logs:           logs,
		access:         acl,
		activityLogger: activityLogger,
	}
}

// GetStatus probes every managed process
func (h *AdminHandler) GetStatus(c *gin.Context) {
	status := h.lifecycle.Probe(c.Request.Context())

	body := gin.H{
		"processes":   status.Processes,
		"all_running": status.AllRunning(),
		"checked_at":  status.CheckedAt,
		"timestamp":   float64(status.CheckedAt.Unix()) + float64(status.CheckedAt.Nanosecond())/1e9,
	}
	for name, running := range status.Processes {
		if _, reserved := body[name]; !reserved {
			body[name] = running
		}
	}
	c.JSON(http.StatusOK, body)
}

// Start runs the full start sequence
func (h *AdminHandler) Start(c *gin.Context) {
	h.respondLifecycle(c, logging.ActivityClusterStart, h.lifecycle.Start(c.Request.Context()))
}

// Stop force-kills every process
func (h *AdminHandler) Stop(c *gin.Context) {
	h.respondLifecycle(c, logging.ActivityClusterStop, h.lifecycle.Stop(c.Request.Context()))
}

// Restart stops, settles and starts
func (h *AdminHandler) Restart(c *gin.Context) {
	h.respondLifecycle(c, logging.ActivityClusterRestart, h.lifecycle.Restart(c.Request.Context()))
}

func (h *AdminHandler) respondLifecycle(c *gin.Context, activityType string, report server.Report) {
	failures := report.Failures()
	if h.activityLogger != nil {
		h.activityLogger.LogLifecycle(activityType, c.ClientIP(), report.Succeeded, failures)
	}

	status := http.StatusOK
	if !report.Succeeded {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success":  report.Succeeded,
		"failures": failures,
		"report":   report,
	})
}

// GetLogs returns the tail of one process log
func (h *AdminHandler) GetLogs(c *gin.Context) {
	name := c.Param("server")

	lines := 0
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be an integer"})
			return
		}
		lines = n
	}

	text, err := h.logs.Tail(c.Request.Context(), name, lines)
	if err != nil {
		if errors.Is(err, server.ErrUnknownProcess) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid server"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": text})
}

// DownloadLog streams a whole process log as an attachment
func (h *AdminHandler) DownloadLog(c *gin.Context) {
	name := c.Param("server")

	logPath, err := h.logs.LogPath(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid server"})
		return
	}
	if !h.logs.CanDownload() {
		c.JSON(http.StatusNotImplemented, gin.H{"error": server.ErrDownloadUnsupported.Error()})
		return
	}

	w := &attachmentWriter{c: c, filename: path.Base(logPath)}
	n, err := h.logs.Download(c.Request.Context(), name, w)
	if h.activityLogger != nil {
		h.activityLogger.LogActivity(&logging.Activity{
			Target:       name,
			Actor:        c.ClientIP(),
			ActivityType: logging.ActivityLogDownload,
			Description:  fmt.Sprintf("Downloaded %s (%d bytes)", logPath, n),
			Success:      err == nil,
			ErrorMessage: errString(err),
		})
	}

	if err != nil {
		if !w.started {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[API] Log download for %s aborted after %d bytes: %v", name, n, err)
		return
	}
	w.begin()
}

// attachmentWriter sends download headers with the first byte so a failure
// before any data can still be reported as JSON
type attachmentWriter struct {
	c        *gin.Context
	filename string
	started  bool
}

func (w *attachmentWriter) begin() {
	if w.started {
		return
	}
	w.started = true
	w.c.Header("Content-Type", "text/plain; charset=utf-8")
	w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", w.filename))
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	w.begin()
	return w.c.Writer.Write(p)
}

type setGMRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// SetGM binds an account to an IP as game master
func (h *AdminHandler) SetGM(c *gin.Context) {
	var req setGMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing name or IP"})
		return
	}

	res := h.access.AssignGM(c.Request.Context(), req.Name, req.IP)
	if h.activityLogger != nil {
		h.activityLogger.LogGMAssign(req.Name, req.IP, c.ClientIP(), res.Succeeded, resultDetail(res))
	}
	h.respondAccess(c, res)
}

type banRequest struct {
	IP string `json:"ip"`
}

// BanIP appends an IP to the ban list
func (h *AdminHandler) BanIP(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing IP"})
		return
	}

	res := h.access.BanIP(c.Request.Context(), req.IP)
	if h.activityLogger != nil {
		h.activityLogger.LogBan(req.IP, c.ClientIP(), res.Succeeded, resultDetail(res))
	}
	h.respondAccess(c, res)
}

func (h *AdminHandler) respondAccess(c *gin.Context, res access.Result) {
	if res.Succeeded {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message, "output": res.Output})
		return
	}
	c.JSON(statusForKind(res.Kind), gin.H{
		"success": false,
		"error":   res.Message,
		"kind":    res.Kind,
		"output":  res.Output,
	})
}

// GetBanList returns the banned IPs
func (h *AdminHandler) GetBanList(c *gin.Context) {
	ips, err := h.access.ListBans(c.Request.Context())
	if err != nil {
		if h.activityLogger != nil {
			h.activityLogger.LogError("ban-list", "ban_list_unavailable", err.Error(), map[string]interface{}{"client": c.ClientIP()})
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "list": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": ips})
}

// GetActivity lists recent operations
func (h *AdminHandler) GetActivity(c *gin.Context) {
	if h.activityLogger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activity log not available"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	activities, err := h.activityLogger.GetActivities(logging.ActivityFilter{
		Target:       c.Query("target"),
		ActivityType: c.Query("type"),
		Limit:        limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities, "count": len(activities)})
}

func resultDetail(res access.Result) string {
	if res.Output != "" {
		return res.Output
	}
	return res.Message
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
