// Package sqlite archives discharge events and snapshot summaries so the
// record survives service restarts and EDM feed outages.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// Store persists the discharge log and per-cycle impact summaries.
// It implements snapshot.Store.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the archive database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS discharge_log (
		monitor TEXT NOT NULL,
		monitor_name TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		watercourse TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		duration_minutes REAL NOT NULL,
		ongoing INTEGER NOT NULL,
		PRIMARY KEY (monitor, start_time)
	);
	CREATE INDEX IF NOT EXISTS idx_discharge_start ON discharge_log(start_time);

	CREATE TABLE IF NOT EXISTS impact_snapshots (
		taken_at DATETIME PRIMARY KEY,
		operator TEXT NOT NULL,
		monitors_tracked INTEGER NOT NULL,
		monitors_discharging INTEGER NOT NULL,
		monitors_recent INTEGER NOT NULL,
		impacted_nodes INTEGER NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordDischarges upserts the current discharge rows. A row is keyed by
// monitor and start time, so an event that was ongoing last cycle is updated
// in place with its end time once it closes.
func (s *Store) RecordDischarges(ctx context.Context, rows []domain.DischargeRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO discharge_log(monitor, monitor_name, x, y, watercourse, start_time, end_time, duration_minutes, ongoing)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(monitor, start_time) DO UPDATE SET
		end_time=excluded.end_time,
		duration_minutes=excluded.duration_minutes,
		ongoing=excluded.ongoing
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var end any
		if row.EndTime != nil {
			end = *row.EndTime
		}
		if _, err := stmt.ExecContext(ctx,
			row.MonitorID,
			row.MonitorName,
			row.X,
			row.Y,
			row.Watercourse,
			row.StartTime,
			end,
			row.DurationMinutes,
			row.Ongoing,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert discharge for %s at %s: %w", row.MonitorID, row.StartTime, err)
		}
	}
	return tx.Commit()
}

// SaveSnapshot records one cycle's summary counts.
func (s *Store) SaveSnapshot(ctx context.Context, takenAt time.Time, operator string, tracked, discharging, recent, impacted int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO impact_snapshots(taken_at, operator, monitors_tracked, monitors_discharging, monitors_recent, impacted_nodes)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(taken_at) DO UPDATE SET
		monitors_tracked=excluded.monitors_tracked,
		monitors_discharging=excluded.monitors_discharging,
		monitors_recent=excluded.monitors_recent,
		impacted_nodes=excluded.impacted_nodes
	`, takenAt, operator, tracked, discharging, recent, impacted)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// OngoingDischarges returns the monitors whose archived newest discharge is
// still open, for closing the loop after a restart.
func (s *Store) OngoingDischarges(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT monitor FROM discharge_log WHERE ongoing = 1 ORDER BY monitor`)
	if err != nil {
		return nil, fmt.Errorf("query ongoing discharges: %w", err)
	}
	defer rows.Close()

	var monitors []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan ongoing discharge: %w", err)
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}
