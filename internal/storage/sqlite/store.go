package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samijaber1/aegis-budget/internal/eval"
	"github.com/samijaber1/aegis-budget/internal/slo"
	"github.com/samijaber1/aegis-budget/internal/storage"
)

// Store implements HistoryStore using SQLite
type Store struct {
	db *sql.DB
}

var _ storage.HistoryStore = (*Store)(nil)

// NewStore creates a new SQLite storage with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Readers must not block the monitor's appends
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append persists entries and their triggered alerts in a single transaction
func (s *Store) Append(ctx context.Context, entries []storage.HistoryEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metricQuery := `
		INSERT INTO error_budget_metrics (
			service, window_label, window_hours, timestamp_ms, availability, sample_count,
			query_failed, burn_rate, error_budget_consumed, time_to_exhaustion_hours,
			alerts_json, report_json
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	alertQuery := `
		INSERT INTO alerts (
			metric_id, service, window_label, alert_type, severity, message,
			burn_rate, threshold, timestamp_ms
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, entry := range entries {
		alertsJSON, err := json.Marshal(entry.Report.TriggeredAlerts)
		if err != nil {
			return fmt.Errorf("failed to marshal alerts: %w", err)
		}

		reportJSON, err := json.Marshal(entry.Report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		var exhaustion sql.NullFloat64
		if entry.Report.TimeToExhaustionHours != nil {
			exhaustion = sql.NullFloat64{Float64: *entry.Report.TimeToExhaustionHours, Valid: true}
		}

		ts := entry.Timestamp.UnixMilli()
		res, err := tx.ExecContext(ctx, metricQuery,
			entry.Service,
			entry.WindowLabel,
			entry.WindowHours,
			ts,
			entry.Report.Availability,
			entry.Report.SampleCount,
			entry.Report.QueryFailed,
			entry.Report.BurnRate,
			entry.Report.ErrorBudgetConsumed,
			exhaustion,
			string(alertsJSON),
			string(reportJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to store report for window %s: %w", entry.WindowLabel, err)
		}

		metricID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read report id: %w", err)
		}

		for _, alert := range entry.Report.TriggeredAlerts {
			_, err := tx.ExecContext(ctx, alertQuery,
				metricID,
				entry.Service,
				entry.WindowLabel,
				alert.Name,
				string(alert.Severity),
				alert.Description,
				alert.BurnRate,
				alert.Threshold,
				ts,
			)
			if err != nil {
				return fmt.Errorf("failed to store alert %s: %w", alert.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// QueryRecent returns entries recorded in [now-hours, now], most recent first
func (s *Store) QueryRecent(ctx context.Context, now time.Time, hours int) ([]storage.HistoryEntry, error) {
	query := `
		SELECT id, service, window_label, window_hours, timestamp_ms, report_json
		FROM error_budget_metrics
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms DESC, id DESC
	`

	from := now.Add(-time.Duration(hours) * time.Hour).UnixMilli()
	rows, err := s.db.QueryContext(ctx, query, from, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []storage.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Latest returns the most recent entry of a window
func (s *Store) Latest(ctx context.Context, windowLabel string) (*storage.HistoryEntry, error) {
	query := `
		SELECT id, service, window_label, window_hours, timestamp_ms, report_json
		FROM error_budget_metrics
		WHERE window_label = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT 1
	`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, windowLabel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// QueryAlerts retrieves alert records with optional filtering
func (s *Store) QueryAlerts(ctx context.Context, filter storage.AlertFilter) ([]storage.AlertRecord, error) {
	query := `
		SELECT id, service, window_label, alert_type, severity, message,
		       burn_rate, threshold, resolved, timestamp_ms
		FROM alerts
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Service != "" {
		query += " AND service = ?"
		args = append(args, filter.Service)
	}

	if filter.WindowLabel != "" {
		query += " AND window_label = ?"
		args = append(args, filter.WindowLabel)
	}

	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}

	if filter.StartTime != nil {
		query += " AND timestamp_ms >= ?"
		args = append(args, filter.StartTime.UnixMilli())
	}

	if filter.EndTime != nil {
		query += " AND timestamp_ms <= ?"
		args = append(args, filter.EndTime.UnixMilli())
	}

	query += " ORDER BY timestamp_ms DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100" // Default limit
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []storage.AlertRecord
	for rows.Next() {
		var record storage.AlertRecord
		var severity string
		var ts int64

		err := rows.Scan(
			&record.ID,
			&record.Service,
			&record.WindowLabel,
			&record.Name,
			&severity,
			&record.Message,
			&record.BurnRate,
			&record.Threshold,
			&record.Resolved,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record.Severity = slo.Severity(severity)
		record.Timestamp = time.UnixMilli(ts).UTC()
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry decodes one history row. sql.ErrNoRows is returned unwrapped.
func scanEntry(row rowScanner) (*storage.HistoryEntry, error) {
	var entry storage.HistoryEntry
	var ts int64
	var reportJSON string

	err := row.Scan(
		&entry.ID,
		&entry.Service,
		&entry.WindowLabel,
		&entry.WindowHours,
		&ts,
		&reportJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	var report eval.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	entry.Timestamp = time.UnixMilli(ts).UTC()
	entry.Report = report
	return &entry, nil
}
