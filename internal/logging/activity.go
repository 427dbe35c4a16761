package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActivityLogger records every operator and user action against the remote
// deployment, to the database and to daily JSON line files.
type ActivityLogger struct {
	db          *sql.DB
	logDir      string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	mu          sync.Mutex
}

// Activity represents a logged activity
type Activity struct {
	Timestamp    time.Time              `json:"timestamp"`
	Target       string                 `json:"target,omitempty"`
	Actor        string                 `json:"actor,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityClusterStart        = "cluster.start"
	ActivityClusterStop         = "cluster.stop"
	ActivityClusterRestart      = "cluster.restart"
	ActivityProcessStatusChange = "process.status_change"
	ActivityAccountCreate       = "account.create"
	ActivityGMAssign            = "gm.assign"
	ActivityBanAdd              = "ban.add"
	ActivityLogDownload         = "log.download"
	ActivityError               = "error"
)

// maxOutputLength bounds remote output copied into metadata
const maxOutputLength = 1000

// NewActivityLogger creates a new activity logger. db may be nil, in which
// case only the files are written.
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)

	return &ActivityLogger{
		db:     db,
		logDir: logDir,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// LogActivity logs an activity to both database and file. A database failure
// is logged and does not prevent the file write.
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.Timestamp.IsZero() {
		activity.Timestamp = al.now()
	}

	if err := al.logToDatabase(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// LogLifecycle records a start, stop or restart of the whole roster
func (al *ActivityLogger) LogLifecycle(activityType, actor string, success bool, failures map[string]string) error {
	metadata := make(map[string]interface{})
	errorMsg := ""
	if len(failures) > 0 {
		metadata["failures"] = failures
		errorMsg = fmt.Sprintf("%d step(s) failed", len(failures))
	}

	return al.LogActivity(&Activity{
		Target:       "cluster",
		Actor:        actor,
		ActivityType: activityType,
		Description:  fmt.Sprintf("Cluster %s requested", lifecycleVerb(activityType)),
		Metadata:     metadata,
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogAccountCreate records an account creation attempt. Passwords never reach this call.
func (al *ActivityLogger) LogAccountCreate(account, actor, attemptID string, success bool, kind, output string) error {
	metadata := map[string]interface{}{
		"attempt_id": attemptID,
	}
	if kind != "" {
		metadata["kind"] = kind
	}
	if output != "" {
		metadata["output"] = truncate(output)
	}

	errorMsg := ""
	if !success {
		errorMsg = truncate(output)
	}

	return al.LogActivity(&Activity{
		Target:       account,
		Actor:        actor,
		ActivityType: ActivityAccountCreate,
		Description:  fmt.Sprintf("Account creation for %s", account),
		Metadata:     metadata,
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogGMAssign records a GM binding
func (al *ActivityLogger) LogGMAssign(account, ip, actor string, success bool, output string) error {
	errorMsg := ""
	if !success {
		errorMsg = truncate(output)
	}

	return al.LogActivity(&Activity{
		Target:       account,
		Actor:        actor,
		ActivityType: ActivityGMAssign,
		Description:  fmt.Sprintf("GM access for %s from %s", account, ip),
		Metadata:     map[string]interface{}{"ip": ip},
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogBan records a ban file append
func (al *ActivityLogger) LogBan(ip, actor string, success bool, output string) error {
	errorMsg := ""
	if !success {
		errorMsg = truncate(output)
	}

	return al.LogActivity(&Activity{
		Target:       ip,
		Actor:        actor,
		ActivityType: ActivityBanAdd,
		Description:  fmt.Sprintf("Banned %s", ip),
		Success:      success,
		ErrorMessage: errorMsg,
	})
}

// LogStatusChange logs a process transition observed by the monitor
func (al *ActivityLogger) LogStatusChange(process string, running bool) error {
	from, to := "running", "stopped"
	if running {
		from, to = to, from
	}

	return al.LogActivity(&Activity{
		Target:       process,
		Actor:        "monitor",
		ActivityType: ActivityProcessStatusChange,
		Description:  fmt.Sprintf("Status changed: %s -> %s", from, to),
		Metadata:     map[string]interface{}{"old_status": from, "new_status": to},
		Success:      true,
	})
}

// LogError logs a general error
func (al *ActivityLogger) LogError(target, errorType, errorMsg string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["error_type"] = errorType

	return al.LogActivity(&Activity{
		Target:       target,
		ActivityType: ActivityError,
		Description:  errorType,
		Metadata:     metadata,
		Success:      false,
		ErrorMessage: errorMsg,
	})
}

// ActivityFilter narrows GetActivities
type ActivityFilter struct {
	Target       string
	ActivityType string
	Since        time.Time
	Limit        int
}

// GetActivities retrieves activities from the database, newest first
func (al *ActivityLogger) GetActivities(filter ActivityFilter) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT timestamp, target, actor, activity_type, description, metadata, success, error_message
		FROM activity_log
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if filter.Target != "" {
		query += " AND target = ?"
		args = append(args, filter.Target)
	}
	if filter.ActivityType != "" {
		query += " AND activity_type = ?"
		args = append(args, filter.ActivityType)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*Activity, 0)
	for rows.Next() {
		activity := &Activity{}
		var metadataJSON sql.NullString

		if err := rows.Scan(
			&activity.Timestamp,
			&activity.Target,
			&activity.Actor,
			&activity.ActivityType,
			&activity.Description,
			&metadataJSON,
			&activity.Success,
			&activity.ErrorMessage,
		); err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}

		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}

		activities = append(activities, activity)
	}

	return activities, rows.Err()
}

// CleanupOldActivities removes activities older than a specified duration
func (al *ActivityLogger) CleanupOldActivities(olderThan time.Duration) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	cutoff := al.now().Add(-olderThan)

	result, err := al.db.Exec("DELETE FROM activity_log WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", rowsAffected, olderThan)

	return nil
}

// Close closes the activity logger
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}

	return nil
}

func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = al.db.Exec(`
		INSERT INTO activity_log (
			timestamp, target, actor, activity_type,
			description, metadata, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		activity.Timestamp.UTC(),
		activity.Target,
		activity.Actor,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

func (al *ActivityLogger) logToFile(activity *Activity) error {
	currentDate := al.now().Format("2006-01-02")

	if al.currentFile == nil || al.currentDate != currentDate {
		if err := al.rotateLogFile(currentDate); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	if _, err := fmt.Fprintf(al.currentFile, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	// remote mutations get flushed immediately
	switch activity.ActivityType {
	case ActivityAccountCreate, ActivityGMAssign, ActivityBanAdd, ActivityError:
		al.currentFile.Sync()
	}

	return nil
}

func (al *ActivityLogger) rotateLogFile(date string) error {
	if al.currentFile != nil {
		al.currentFile.Close()
		al.currentFile = nil
	}

	logPath := filepath.Join(al.logDir, fmt.Sprintf("activity-%s.log", date))

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	al.currentFile = file
	al.currentDate = date

	log.Printf("[ActivityLogger] Rotated log file to: %s", logPath)
	return nil
}

func lifecycleVerb(activityType string) string {
	switch activityType {
	case ActivityClusterStart:
		return "start"
	case ActivityClusterStop:
		return "stop"
	case ActivityClusterRestart:
		return "restart"
	default:
		return activityType
	}
}

func truncate(s string) string {
	if len(s) > maxOutputLength {
		return s[:maxOutputLength] + "... (truncated)"
	}
	return s
}
