package database

import (
	"fmt"
	"sort"
	"time"
)

// StatusSample is one probe result for one process
type StatusSample struct {
	CheckedAt time.Time `json:"checked_at"`
	Process   string    `json:"process"`
	Running   bool      `json:"running"`
}

// RecordStatus stores one snapshot of the roster
func (db *DB) RecordStatus(checkedAt time.Time, status map[string]bool) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO process_status_history (checked_at, process, running) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare status insert: %w", err)
	}
	defer stmt.Close()

	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := stmt.Exec(checkedAt, name, status[name]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record status for %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// StatusHistory returns samples for process (all processes when empty), newest first
func (db *DB) StatusHistory(process string, since time.Time, limit int) ([]StatusSample, error) {
	query := "SELECT checked_at, process, running FROM process_status_history WHERE checked_at >= ?"
	args := []interface{}{since}

	if process != "" {
		query += " AND process = ?"
		args = append(args, process)
	}
	query += " ORDER BY checked_at DESC, process ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	samples := make([]StatusSample, 0)
	for rows.Next() {
		var s StatusSample
		if err := rows.Scan(&s.CheckedAt, &s.Process, &s.Running); err != nil {
			return nil, fmt.Errorf("failed to scan status sample: %w", err)
		}
		samples = append(samples, s)
	}

	return samples, rows.Err()
}

// PruneStatusHistory deletes samples older than cutoff
func (db *DB) PruneStatusHistory(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM process_status_history WHERE checked_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune status history: %w", err)
	}
	return result.RowsAffected()
}
