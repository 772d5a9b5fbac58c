// Package store persists attendance punches in SQLite. A punch is keyed by
// device, user and timestamp, so re-reading a log that was not cleared
// stores nothing twice.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/siwa2904/zkclient"
)

// timestamps are device-local wall clock, stored without a zone
const timeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS attendance (
   id         INTEGER PRIMARY KEY AUTOINCREMENT,
   device_id  TEXT NOT NULL,
   user_id    TEXT NOT NULL,
   punched_at TEXT NOT NULL,
   state      INTEGER NOT NULL,
   created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
   UNIQUE (device_id, user_id, punched_at)
);
CREATE INDEX IF NOT EXISTS idx_attendance_device ON attendance (device_id, punched_at);

CREATE TABLE IF NOT EXISTS polls (
   id        INTEGER PRIMARY KEY AUTOINCREMENT,
   run_id    TEXT NOT NULL,
   device_id TEXT NOT NULL,
   polled_at DATETIME NOT NULL,
   fetched   INTEGER NOT NULL,
   stored    INTEGER NOT NULL,
   error     TEXT
);
CREATE INDEX IF NOT EXISTS idx_polls_device ON polls (device_id, polled_at);
`

// Punch is a stored attendance record.
type Punch struct {
	DeviceID  string
	UserID    string
	Timestamp time.Time
	State     int
}

// Poll is one stored poll outcome.
type Poll struct {
	RunID    string
	DeviceID string
	PolledAt time.Time
	Fetched  int
	Stored   int
	Error    string
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; pollers for different devices share the handle
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAttendance inserts records for deviceID and returns how many were new.
func (s *Store) SaveAttendance(ctx context.Context, deviceID string, records []zkclient.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO attendance (device_id, user_id, punched_at, state) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	stored := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, deviceID, r.ID, r.Timestamp.Format(timeLayout), r.State)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", r, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		stored += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stored, nil
}

// ListAttendance returns the punches of deviceID at or after since, oldest
// first. An empty deviceID lists every device. Times are returned in loc.
func (s *Store) ListAttendance(ctx context.Context, deviceID string, since time.Time, loc *time.Location) ([]Punch, error) {
	if loc == nil {
		loc = time.Local
	}
	query := "SELECT device_id, user_id, punched_at, state FROM attendance WHERE punched_at >= ?"
	args := []interface{}{since.Format(timeLayout)}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY punched_at, device_id, user_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Punch
	for rows.Next() {
		var p Punch
		var ts string
		if err := rows.Scan(&p.DeviceID, &p.UserID, &ts, &p.State); err != nil {
			return nil, err
		}
		p.Timestamp, err = time.ParseInLocation(timeLayout, ts, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordPoll stores the outcome of one poll.
func (s *Store) RecordPoll(ctx context.Context, p Poll) error {
	var errText interface{}
	if p.Error != "" {
		errText = p.Error
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO polls (run_id, device_id, polled_at, fetched, stored, error) VALUES (?, ?, ?, ?, ?, ?)",
		p.RunID, p.DeviceID, p.PolledAt.UTC().Format(time.RFC3339), p.Fetched, p.Stored, errText)
	return err
}

// LastPoll returns the latest poll of deviceID, or nil.
func (s *Store) LastPoll(ctx context.Context, deviceID string) (*Poll, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT run_id, device_id, polled_at, fetched, stored, COALESCE(error, '') FROM polls WHERE device_id = ? ORDER BY id DESC LIMIT 1",
		deviceID)
	var p Poll
	var at string
	if err := row.Scan(&p.RunID, &p.DeviceID, &at, &p.Fetched, &p.Stored, &p.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return nil, err
	}
	p.PolledAt = t
	return &p, nil
}
