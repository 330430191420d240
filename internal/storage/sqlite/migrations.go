package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Burn rate report history (append-only, one row per window per tick)
CREATE TABLE IF NOT EXISTS error_budget_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	window_label TEXT NOT NULL,
	window_hours INTEGER NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	availability REAL NOT NULL,
	sample_count INTEGER NOT NULL DEFAULT 0,
	query_failed BOOLEAN NOT NULL DEFAULT 0,
	burn_rate REAL NOT NULL,
	error_budget_consumed REAL NOT NULL,
	time_to_exhaustion_hours REAL,
	alerts_json TEXT NOT NULL,
	report_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON error_budget_metrics(timestamp_ms DESC);
CREATE INDEX IF NOT EXISTS idx_metrics_window ON error_budget_metrics(window_label, timestamp_ms DESC);

-- Alert log
CREATE TABLE IF NOT EXISTS alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metric_id INTEGER NOT NULL,
	service TEXT NOT NULL,
	window_label TEXT NOT NULL,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	burn_rate REAL NOT NULL,
	threshold REAL NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT 0,
	timestamp_ms INTEGER NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (metric_id) REFERENCES error_budget_metrics(id)
);

CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp_ms DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
`
