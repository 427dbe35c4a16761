package database

import (
	"fmt"
	"time"
)

// ProvisioningAttempt is the audit record of one account creation request.
// The password is never stored.
type ProvisioningAttempt struct {
	AttemptID    string    `json:"attempt_id"`
	AccountName  string    `json:"account_name"`
	RequestedAt  time.Time `json:"requested_at"`
	Mode         string    `json:"mode,omitempty"`
	ResolvedPath string    `json:"resolved_path,omitempty"`
	Succeeded    bool      `json:"succeeded"`
	Kind         string    `json:"kind,omitempty"`
	FailedStep   string    `json:"failed_step,omitempty"`
	Ambiguous    bool      `json:"ambiguous,omitempty"`
	Message      string    `json:"message,omitempty"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
}

// RecordProvisioning stores an attempt
func (db *DB) RecordProvisioning(a ProvisioningAttempt) error {
	_, err := db.Exec(`
		INSERT INTO account_provisioning (
			attempt_id, account_name, requested_at, mode, resolved_path,
			succeeded, kind, failed_step, ambiguous, message, remote_addr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.AttemptID, a.AccountName, a.RequestedAt, a.Mode, a.ResolvedPath,
		a.Succeeded, a.Kind, a.FailedStep, a.Ambiguous, a.Message, a.RemoteAddr,
	)
	if err != nil {
		return fmt.Errorf("failed to record provisioning attempt: %w", err)
	}
	return nil
}

// ProvisioningAttempts lists attempts, newest first. An empty account lists all.
func (db *DB) ProvisioningAttempts(account string, limit int) ([]ProvisioningAttempt, error) {
	query := `
		SELECT attempt_id, account_name, requested_at, mode, resolved_path,
			succeeded, kind, failed_step, ambiguous, message, remote_addr
		FROM account_provisioning
	`
	args := make([]interface{}, 0)
	if account != "" {
		query += " WHERE account_name = ?"
		args = append(args, account)
	}
	query += " ORDER BY requested_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query provisioning attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]ProvisioningAttempt, 0)
	for rows.Next() {
		var a ProvisioningAttempt
		if err := rows.Scan(
			&a.AttemptID, &a.AccountName, &a.RequestedAt, &a.Mode, &a.ResolvedPath,
			&a.Succeeded, &a.Kind, &a.FailedStep, &a.Ambiguous, &a.Message, &a.RemoteAddr,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provisioning attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
