// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `CREATE TABLE IF NOT EXISTS daily_usage (
	day     TEXT PRIMARY KEY,
	credits INTEGER NOT NULL DEFAULT 0
)`

// SQLiteLedger persists daily usage in a single-table SQLite database.
type SQLiteLedger struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// OpenSQLite opens (or creates) the ledger database at path.
func OpenSQLite(path string, limit int) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteLedger{db: db, limit: limit, now: time.Now}, nil
}

// SetClock replaces the time source.
func (l *SQLiteLedger) SetClock(now func() time.Time) {
	l.now = now
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) today() string {
	return l.now().Format(DayFormat)
}

// Used returns today's credits.
func (l *SQLiteLedger) Used() (int, error) {
	var used int
	err := l.db.QueryRow(`SELECT credits FROM daily_usage WHERE day = ?`, l.today()).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return used, nil
}

// Info implements Ledger.
func (l *SQLiteLedger) Info(cost int) (Info, error) {
	used, err := l.Used()
	if err != nil {
		return Info{}, err
	}
	return newInfo(used, l.limit, cost), nil
}

// Increment implements Ledger.
func (l *SQLiteLedger) Increment(cost int) error {
	_, err := l.db.Exec(`INSERT INTO daily_usage (day, credits) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET credits = credits + excluded.credits`,
		l.today(), NormalizeCost(cost))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Reset clears today's usage.
func (l *SQLiteLedger) Reset() error {
	if _, err := l.db.Exec(`DELETE FROM daily_usage WHERE day = ?`, l.today()); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// History returns the last n days (today included), oldest first. Days
// without usage are reported with zero credits.
func (l *SQLiteLedger) History(n int) ([]Day, error) {
	if n <= 0 {
		return nil, nil
	}
	now := l.now()
	from := now.AddDate(0, 0, -(n - 1)).Format(DayFormat)

	rows, err := l.db.Query(`SELECT day, credits FROM daily_usage WHERE day >= ? ORDER BY day`, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int)
	for rows.Next() {
		var day string
		var credits int
		if err := rows.Scan(&day, &credits); err != nil {
			return nil, err
		}
		byDay[day] = credits
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	days := make([]Day, 0, n)
	for i := n - 1; i >= 0; i-- {
		d := now.AddDate(0, 0, -i).Format(DayFormat)
		days = append(days, Day{Date: d, Credits: byDay[d]})
	}
	return days, nil
}
