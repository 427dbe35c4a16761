package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_activity_log",
		Up: `
CREATE TABLE activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    activity_type TEXT NOT NULL,
    description TEXT NOT NULL,
    metadata TEXT,
    success BOOLEAN NOT NULL,
    error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_activity_timestamp ON activity_log(timestamp);
CREATE INDEX idx_activity_type ON activity_log(activity_type);
CREATE INDEX idx_activity_target ON activity_log(target);
`,
	},
	{
		Version: "002_process_status_history",
		Up: `
CREATE TABLE process_status_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    checked_at DATETIME NOT NULL,
    process TEXT NOT NULL,
    running BOOLEAN NOT NULL
);

CREATE INDEX idx_status_history_process ON process_status_history(process, checked_at);
`,
	},
	{
		Version: "003_account_provisioning",
		Up: `
CREATE TABLE account_provisioning (
    attempt_id TEXT PRIMARY KEY,
    account_name TEXT NOT NULL,
    requested_at DATETIME NOT NULL,
    mode TEXT NOT NULL DEFAULT '',
    resolved_path TEXT NOT NULL DEFAULT '',
    succeeded BOOLEAN NOT NULL,
    kind TEXT NOT NULL DEFAULT '',
    failed_step TEXT NOT NULL DEFAULT '',
    ambiguous BOOLEAN NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    remote_addr TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_provisioning_account ON account_provisioning(account_name);
CREATE INDEX idx_provisioning_requested ON account_provisioning(requested_at);
`,
	},
}
