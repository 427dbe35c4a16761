package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/database"
	"github.com/TheGojiOG/tw404-manager/internal/server"
	"github.com/gin-gonic/gin"
)

// StateReader reads the local audit tables
type StateReader interface {
	StatusHistory(process string, since time.Time, limit int) ([]database.StatusSample, error)
	ProvisioningAttempts(account string, limit int) ([]database.ProvisioningAttempt, error)
}

// SnapshotSource holds the last scheduled roster probe
type SnapshotSource interface {
	Latest() (server.Status, bool)
}

// WatcherCounter reports how many dashboards follow a room
type WatcherCounter interface {
	RoomSize(room string) int
}

// HistoryHandler serves recorded status samples and provisioning attempts
type HistoryHandler struct {
	state     StateReader
	snapshots SnapshotSource
	watchers  WatcherCounter
	room      string
	now       func() time.Time
}

// NewHistoryHandler creates a history handler. snapshots and watchers may be nil.
func NewHistoryHandler(state StateReader, snapshots SnapshotSource, watchers WatcherCounter, room string) *HistoryHandler {
	return &HistoryHandler{
		state:     state,
		snapshots: snapshots,
		watchers:  watchers,
		room:      room,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetLatestStatus returns the snapshot of the last scheduled probe without
// touching the remote host
func (h *HistoryHandler) GetLatestStatus(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "roster monitor is disabled"})
		return
	}

	status, ok := h.snapshots.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status recorded yet"})
		return
	}

	watchers := 0
	if h.watchers != nil {
		watchers = h.watchers.RoomSize(h.room)
	}
	c.JSON(http.StatusOK, gin.H{
		"processes":   status.Processes,
		"all_running": status.AllRunning(),
		"checked_at":  status.CheckedAt,
		"watchers":    watchers,
	})
}

// GetStatusHistory lists status samples, newest first
func (h *HistoryHandler) GetStatusHistory(c *gin.Context) {
	limit, ok := positiveQuery(c, "limit", 500)
	if !ok {
		return
	}
	hours, ok := positiveQuery(c, "hours", 24)
	if !ok {
		return
	}

	since := h.now().Add(-time.Duration(hours) * time.Hour)
	samples, err := h.state.StatusHistory(c.Query("process"), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
}

// GetProvisioningAttempts lists account creation attempts, newest first
func (h *HistoryHandler) GetProvisioningAttempts(c *gin.Context) {
	limit, ok := positiveQuery(c, "limit", 100)
	if !ok {
		return
	}

	attempts, err := h.state.ProvisioningAttempts(c.Query("account"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts, "count": len(attempts)})
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a positive integer"})
		return 0, false
	}
	return value, true
}
